package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TheBitDrifter/depot"
)

const (
	flagConfig   = "config"
	flagLogLevel = "log-level"
)

// NewRootCmd returns the depotbench command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "depotbench",
		Short:         "Exercise a depot registry and report its statistics",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String(flagConfig, "", "YAML config file; DEPOT_* environment variables override it")
	root.PersistentFlags().String(flagLogLevel, "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		NewChurnCmd(),
		NewConfigCmd(),
	)
	return root
}

// loadConfig reads the --config file and attaches a console logger at
// --log-level.
func loadConfig(cmd *cobra.Command) (depot.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return depot.Config{}, err
	}
	cfg, err := depot.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	levelName, err := cmd.Flags().GetString(flagLogLevel)
	if err != nil {
		return cfg, err
	}
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		return cfg, err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	cfg.Logger = &logger
	return cfg, nil
}
