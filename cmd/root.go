// Package cmd defines the cartage command-line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cartageio/cartage/internal/config"
	"github.com/cartageio/cartage/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "cartage",
	Short: "Cartage - logistics operations assistant",
	Long: `Cartage answers logistics questions by combining a language model
with live shipment data and an indexed document base. It serves an HTTP
API, answers one-shot questions, and manages the document index.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig loads and validates configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger honoring the verbose flag.
func newLogger(json bool) log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: json})
}
