package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/1a11/billard/internal/mutation"
)

func newPublishCmd(clientFor clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <file.json|->",
		Short: "Publish an article document",
		Long: `Publish uploads an article JSON document. The server derives the
filename from header.mainHeader and header.date, so publishing the same
title again replaces the earlier copy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readInput(args[0])
			if err != nil {
				return err
			}
			if !json.Valid(body) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}
			c, err := clientFor(cmd.Context())
			if err != nil {
				return err
			}
			var resp mutation.PublishResponse
			if err := c.post(cmd.Context(), "/admin/upload", body, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s", resp.Filename)
			if resp.Sanitized {
				fmt.Fprint(cmd.OutOrStdout(), " (HTML was escaped)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func newRemoveCmd(clientFor clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <filename>",
		Short: "Remove a stored article by filename",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(mutation.RemoveRequest{Filename: args[0]})
			if err != nil {
				return err
			}
			c, err := clientFor(cmd.Context())
			if err != nil {
				return err
			}
			var resp mutation.RemoveResponse
			if err := c.post(cmd.Context(), "/admin/remove", body, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
