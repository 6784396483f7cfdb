// Package cli provides common CLI initialization utilities shared by
// cmd/spendwise and cmd/report-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendwise/internal/amqp"
	"spendwise/internal/backend"
	"spendwise/internal/cache"
	"spendwise/internal/config"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/ports"
	"spendwise/internal/rules"
	"spendwise/internal/services"
)

// SetupLogger initializes structured logging at the given level and format
// for component. Returns the configured logger and sets it as the default logger.
func SetupLogger(level, format, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(level),
		Format:    format,
		Output:    os.Stdout,
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitStore opens the configured store. Exits the process on failure.
func InitStore(ctx context.Context, logger *applog.Logger, cfg *config.Config) *backend.Result {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.Open(ctx, bcfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// InitRules loads the classifier keyword rules. Exits the process on failure.
func InitRules(logger *applog.Logger, path string) *rules.Engine {
	engine, err := rules.Load(path)
	if err != nil {
		logger.Error("Failed to load classifier rules", "error", err, "path", path)
		os.Exit(1)
	}
	logger.Info("Loaded classifier rules", "count", len(engine.Rules()), "path", path)
	return engine
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// InitAMQP connects to the message broker. Returns nil when AMQP_URL is not
// set; exits the process when the broker is configured but unreachable.
func InitAMQP(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(amqp.Config{
		URL:         cfg.AMQPURL,
		Exchange:    cfg.AMQPExchange,
		AlertQueue:  cfg.AMQPAlertQueue,
		ReportQueue: cfg.AMQPReportQueue,
		ReadyQueue:  cfg.AMQPReportReadyQueue,
	})
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	logger.Info("AMQP client connected", "exchange", cfg.AMQPExchange)
	return client
}

// InitSnapshotCache puts an LRU in front of the durable narrative store and
// starts periodic expiry. Callers stop the returned manager on shutdown.
func InitSnapshotCache(cfg *config.Config, store ports.SnapshotStore) (*services.CachedSnapshotStore, *cache.LRUCache[core.InsightSnapshot], *cache.Manager) {
	lru := cache.NewLRUCache[core.InsightSnapshot](cfg.SnapshotCacheSize, cfg.SnapshotCacheTTL)
	manager := cache.NewManager()
	manager.Register(lru)
	manager.StartCleanup(10 * time.Minute)
	return services.NewCachedSnapshotStore(store, lru), lru, manager
}
