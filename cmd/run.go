package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"splitrelay/pkg/backend"
	"splitrelay/pkg/channel"
	"splitrelay/pkg/channel/telegram"
	"splitrelay/pkg/config"
	"splitrelay/pkg/logger"
	"splitrelay/pkg/relay"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay bot",
	Long:  "Loads configuration from the environment and runs the Telegram relay in polling (development) or webhook (production) mode.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("configuration error: %v\n", err)
			return
		}

		appLogger, err := logger.New(loggingFor(cfg))
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.run")

		adapters, err := channelAdapters(cfg, log)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := backend.NewClient(cfg.Backend, log)
		svc, err := relay.NewService(cfg, client, adapters, log)
		if err != nil {
			log.Error("Failed to initialize relay service", "error", err)
			return
		}

		log.Info("Relay started", "mode", deliveryMode(cfg), "bot_name", cfg.BotName)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Relay runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// loggingFor applies the mode-dependent default verbosity: debug in
// development, info otherwise.
func loggingFor(cfg *config.Config) config.LoggingConfig {
	logging := cfg.Logging
	if logging.Level == "" && cfg.IsDev() {
		logging.Level = "debug"
	}

	return logging
}

func deliveryMode(cfg *config.Config) string {
	if cfg.IsProd() {
		return "webhook"
	}

	return "polling"
}

func channelAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapter, err := telegram.NewAdapter(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure telegram channel: %w", err)
	}

	return []channel.Adapter{adapter}, nil
}
