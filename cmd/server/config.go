package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/1a11/billard/internal/cfg"
)

// loadConfig resolves flags, then the process environment, then the
// optional env file. showVersion reports -V.
func loadConfig(args []string, stderr io.Writer) (conf cfg.App, showVersion bool, err error) {
	fs := flag.NewFlagSet("billard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.Register(fs, &conf)
	fs.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	if err := fs.Parse(args); err != nil {
		return conf, false, err
	}
	if showVersion {
		return conf, true, nil
	}

	envFile := conf.EnvFile
	if envFile == "" {
		envFile = os.Getenv(cfg.EnvKey(cfg.EnvPrefix, "env-file"))
	}
	var fileVals map[string]string
	if envFile != "" {
		if fileVals, err = cfg.LoadEnvFile(envFile); err != nil {
			return conf, false, err
		}
	}
	cfg.FillFromEnv(fs, cfg.EnvPrefix, cfg.EnvLookup(fileVals), func(format string, args ...any) {
		fmt.Fprintf(stderr, format+"\n", args...)
	})
	return conf, false, nil
}

// resolveSecrets reads the Hawk key from SSM when it is configured there
// and not already set.
func resolveSecrets(ctx context.Context, conf *cfg.App) error {
	if conf.HawkKey != "" || conf.HawkKeySSMParam == "" {
		return nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	return cfg.ResolveHawkKey(ctx, conf, ssm.NewFromConfig(awsCfg))
}
