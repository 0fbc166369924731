package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/francesco-re-1107/HostPingBot/internal/bot"
	"github.com/francesco-re-1107/HostPingBot/internal/config"
	"github.com/francesco-re-1107/HostPingBot/internal/expiry"
	"github.com/francesco-re-1107/HostPingBot/internal/notify"
	"github.com/francesco-re-1107/HostPingBot/internal/pinger"
	"github.com/francesco-re-1107/HostPingBot/internal/poller"
	"github.com/francesco-re-1107/HostPingBot/internal/pushserver"
	"github.com/francesco-re-1107/HostPingBot/internal/storage"
	"github.com/francesco-re-1107/HostPingBot/internal/storage/postgres"
	"github.com/francesco-re-1107/HostPingBot/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load application configuration from environment variables.
	cfg := config.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	// Create a context that is canceled on OS signals like SIGINT or SIGTERM.
	// This is the foundation for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the storage layer.
	var store storage.Storer
	switch cfg.DatabaseDriver {
	case "postgres":
		pgStore, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize postgres storage: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
	default:
		sqliteStore, err := sqlite.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database connection successful")

	// Authorize the Telegram bot client shared by the notifier and the
	// registration front-end.
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return fmt.Errorf("failed to initialize telegram bot: %w", err)
	}

	// The notification queue decouples the engine from delivery latency.
	queue := notify.NewQueue(notify.NewTelegramSender(api), 256, logger)
	queue.Start()

	// Liveness engine: poll scheduler, heartbeat expiry scanner, push server.
	pollerSvc := poller.New(store, pinger.New(logger), queue, poller.Config{
		Interval: cfg.PollInterval,
		ProbeOptions: pinger.Options{
			Count:       cfg.ProbeCount,
			Interval:    cfg.ProbeInterval,
			Timeout:     cfg.ProbeTimeout,
			PayloadSize: cfg.ProbePayloadSize,
			Concurrency: cfg.ProbeConcurrency,
		},
		OfflineRepeatCount: cfg.OfflineRepeatCount,
	}, logger)

	scanner := expiry.New(store, queue, cfg.ExpiryScanInterval, logger)

	server := pushserver.NewServer(cfg.PushServerPort, pushserver.NewHandlers(store, queue, logger), logger)

	// Registration front-end.
	botSvc := bot.New(api, store, bot.Config{
		BaseURL:       cfg.BaseURL,
		AdminChatID:   cfg.TelegramAdminID,
		WatchdogLimit: cfg.WatchdogLimit,
	}, logger)

	pollerSvc.Start()
	scanner.Start()
	server.Start()
	botSvc.Start()

	logger.Info().Msg("application is running")

	// Block here until the context is canceled (e.g., by pressing Ctrl+C).
	<-ctx.Done()

	// --- Graceful shutdown logic ---
	logger.Info().Msg("shutdown signal received, starting graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	// Stop intake first, then the engine loops, then drain notifications.
	botSvc.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("push server shutdown error: %w", err)
	}
	pollerSvc.Stop()
	scanner.Stop()
	queue.Stop()

	logger.Info().Msg("application shut down gracefully")
	return nil
}
