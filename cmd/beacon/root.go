package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Beacon/server/internal/config"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "beacon",
		Short: "Beacon: simple heartbeat monitor",
		Long: `Beacon records heartbeats ("beats") from services and reports when each
service last checked in.

Run "beacon serve" to start the server, then send beats with "beacon beat <id>"
or POST /services/<id>/beat.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "Path to a YAML config file")

	root.AddCommand(
		newServeCmd(),
		newBeatCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newMigrateCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves the effective configuration for cmd. Flags on cmd whose
// names match config keys override env and file values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	v, err := config.New(file, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger.With(zap.String("app", "beacon"), zap.String("env", cfg.Env)), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the beacon version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
