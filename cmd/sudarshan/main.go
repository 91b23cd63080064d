// Command sudarshan relays the Dhan binary market feed to HTTP, SSE and
// WebSocket clients and runs the signal-fusion engine. Subcommands also
// decode single frames, run offline analyses, print the effective config
// and tail the Redis channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sudarshan/internal/app"
	"github.com/alanyoungcy/sudarshan/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sudarshan",
		Short:        "Broker feed relay and signal-fusion service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path (TOML)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service in the configured mode",
		RunE:  runServe,
	}
	serveCmd.Flags().String("mode", "", "override the configured mode (server, feed)")
	root.AddCommand(serveCmd)

	root.AddCommand(newDecodeCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTailCmd())

	return root
}

// loadConfig reads --config and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	path, _ := cmd.Flags().GetString("config")
	logger.Info("sudarshan starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", path),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
			return nil
		}
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("sudarshan stopped")
	return nil
}
