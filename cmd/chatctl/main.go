// Command chatctl operates a carechat deployment from the terminal: it chats
// against the configured stack, migrates SQL stores, reads profiles and mints
// development tokens.
package main

import (
	"context"
	"fmt"
	"os"

	"carechat/infrastructure/config"
	"carechat/infrastructure/di"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Operate the carechat service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warn")
	rootCmd.AddCommand(chatCmd, migrateCmd, profileCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the same environment as the server. Logs stay quiet
// unless --verbose is set.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !verbose {
		cfg.LogLevel = "warn"
	}
	logger, _, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withContainer runs fn against a fully wired container
func withContainer(ctx context.Context, fn func(*di.Container) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	container, cleanup, err := di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	return fn(container)
}
