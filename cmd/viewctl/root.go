package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	infraconfig "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/config"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/agent"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/config"
)

const closeTimeout = 30 * time.Second

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "viewctl",
		Short:        "Record and flush statement views",
		Long:         `viewctl drives the view aggregator directly against the configured local store and remote backend.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default is $CONFIG_PATH or ./config.yml)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newRecordCmd(opts),
		newFlushCmd(opts),
		newPendingCmd(opts),
	)

	return rootCmd
}

// withAgent builds an agent for the duration of fn and closes it afterwards.
func (o *rootOptions) withAgent(ctx context.Context, fn func(*agent.Agent) error) (err error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if o.debug {
		level = "debug"
	}
	log, err := logger.New(logger.Config{
		Level:       level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(logger.String("service", "viewctl"))

	a, err := agent.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if closeErr := a.Close(closeCtx); closeErr != nil && err == nil {
			err = fmt.Errorf("close agent: %w", closeErr)
		}
	}()

	return fn(a)
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = infraconfig.GetConfigPath("config.yml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}
