package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"spendwise/internal/ai"
	"spendwise/internal/cli"
	apphttp "spendwise/internal/http"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentApp)
	logger.Info("Starting spendwise", "port", cfg.Port, "backend", cfg.DataBackend)

	ctx := context.Background()
	backendResult := cli.InitStore(ctx, logger, cfg)
	store := backendResult.Store

	engine := cli.InitRules(logger, cfg.ClassifierRulesFile)
	aiClient := ai.NewClient(cfg.AI())
	if !aiClient.Configured() {
		logger.Info("AI provider not configured, using keyword rules and fallback narratives only")
	}

	snapshots, snapshotCache, cacheManager := cli.InitSnapshotCache(cfg, store)

	amqpClient := cli.InitAMQP(logger, cfg)
	var alertSink services.AlertSink = services.LogAlertSink
	var requests apphttp.ReportRequester
	if amqpClient != nil {
		alertSink = services.NewQueueAlertSink(amqpClient)
		requests = amqpClient
	}

	classifier := services.NewClassifier(engine, aiClient)
	evaluator := services.NewBudgetEvaluator(store, store, store, alertSink)
	insights := services.NewInsightAggregator(store, store, snapshots, aiClient)

	deps := apphttp.Deps{
		Users:      services.NewUserService(store),
		Expenses:   services.NewExpenseService(store, store, classifier, evaluator),
		Budgets:    services.NewBudgetService(store, store),
		Classifier: classifier,
		Insights:   insights,
		Reports:    services.NewReportAssembler(store, store, insights),
		Requests:   requests,
		Ready:      backendResult.Ping,
		CacheStats: snapshotCache.Stats,
	}
	srv := apphttp.NewServer(":"+cfg.Port, deps, logger)

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := backendResult.Shutdown(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
