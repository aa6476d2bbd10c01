package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/1a11/billard/internal/cryptoutil"
	"github.com/1a11/billard/internal/hawk"
	"github.com/1a11/billard/internal/log"
)

const keyEnv = "BILLARD_HAWK_KEY"

type rootFlags struct {
	url       string
	id        string
	algorithm string
	timeout   time.Duration
	verbose   bool
}

// newRootCmd builds the command tree. getenv supplies the key and the
// BILLARD_URL default.
func newRootCmd(getenv func(string) string) *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:           "billard-upload",
		Short:         "Publish and remove articles on a billard server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lvl := slog.LevelInfo
			if f.verbose {
				lvl = slog.LevelDebug
			}
			L, err := log.New(log.Options{App: "billard-upload", Level: lvl, Writer: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			cmd.SetContext(log.WithContext(cmd.Context(), L))
			return nil
		},
	}

	defaultURL := getenv("BILLARD_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.url, "url", defaultURL, "server base URL (env BILLARD_URL)")
	pf.StringVar(&f.id, "id", "billard", "Hawk credential id")
	pf.StringVar(&f.algorithm, "algorithm", cryptoutil.SHA256, "Hawk MAC algorithm (sha256|sha1)")
	pf.DurationVar(&f.timeout, "timeout", 10*time.Second, "request timeout")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "log request details")

	clientFor := func(context.Context) (*client, error) {
		key := getenv(keyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", keyEnv)
		}
		return newClient(f.url, hawk.Credential{ID: f.id, Key: []byte(key), Algorithm: f.algorithm},
			&http.Client{Timeout: f.timeout})
	}

	root.AddCommand(newPublishCmd(clientFor), newRemoveCmd(clientFor))
	return root
}

type clientFactory func(ctx context.Context) (*client, error)

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}
