package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/PlanktoScope/automirror/internal/app/automirror"
)

func syncAction(c *cli.Context) error {
	if c.Args().Len() > 1 {
		return errors.Errorf("expected at most one argument, got %d", c.Args().Len())
	}
	config, err := loadConfig(c)
	if err != nil {
		return err
	}

	runner := automirror.NewRunner(config, os.Stdout, os.Stderr)
	if _, err = runner.Run(c.Context); err != nil {
		return errors.Wrap(err, "sync failed")
	}
	return nil
}

// loadConfig assembles the configuration from the built-in defaults, the optional config file,
// flags and environment variables, and the positional repository argument, in increasing order of
// precedence.
func loadConfig(c *cli.Context) (automirror.Config, error) {
	config := automirror.DefaultConfig()
	if configPath := c.String("config"); configPath != "" {
		fileConfig, err := automirror.LoadFileConfig(configPath)
		if err != nil {
			return config, err
		}
		if config, err = config.Overlay(fileConfig); err != nil {
			return config, err
		}
	}

	if c.IsSet("git-repo") {
		config.RepoPath = c.String("git-repo")
	}
	if c.IsSet("tls-only") {
		config.TLSOnly = c.Bool("tls-only")
	}
	if c.IsSet("keyring") {
		config.KeyringPath = c.String("keyring")
	}
	if c.IsSet("remote") {
		config.Remote = c.String("remote")
	}
	if c.IsSet("branch") {
		config.Branch = c.String("branch")
	}
	if c.IsSet("timeout") {
		config.Timeout = c.Duration("timeout")
	}
	if c.IsSet("seed") {
		config.Seed = c.Uint64("seed")
	}
	if c.IsSet("no-push") {
		config.NoPush = c.Bool("no-push")
	}
	config.DryRun = c.Bool("dry-run")
	if c.IsSet("author-name") {
		config.Author.Name = c.String("author-name")
	}
	if c.IsSet("author-email") {
		config.Author.Email = c.String("author-email")
	}
	if c.Args().Present() {
		config.RepoPath = c.Args().First()
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config.ResolveCredentials()
}
