package main

import (
	"context"
	"os"
	"time"

	"spendwise/internal/ai"
	"spendwise/internal/cli"
	applog "spendwise/internal/log"
	"spendwise/internal/services"
	gsheet "spendwise/internal/sheets/google"
	"spendwise/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat, applog.ComponentWorker)
	logger.Info("Starting report worker",
		"schedule", cfg.ReportSchedule,
		"interval", cfg.ReportCheckInterval.String(),
		"concurrency", cfg.ReportConcurrency)

	due, err := services.GetDuenessChecker(cfg.ReportSchedule)
	if err != nil {
		logger.Error("Invalid report schedule", "error", err)
		os.Exit(1)
	}

	startCtx := context.Background()
	backendResult := cli.InitStore(startCtx, logger, cfg)
	store := backendResult.Store

	aiClient := ai.NewClient(cfg.AI())
	snapshots, _, cacheManager := cli.InitSnapshotCache(cfg, store)
	insights := services.NewInsightAggregator(store, store, snapshots, aiClient)
	assembler := services.NewReportAssembler(store, store, insights)

	var sinks []services.ReportSink
	if cfg.GoogleSpreadsheetID != "" {
		exporter, err := gsheet.New(startCtx, cfg.GoogleSpreadsheetID)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, exporter)
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient := cli.InitAMQP(logger, cfg)
	var publisher services.ReportReadyPublisher
	if amqpClient != nil {
		publisher = amqpClient
	}

	job := services.NewMonthlyReportJob(store, assembler, sinks, publisher, cfg.ReportConcurrency)
	reportWorker := worker.NewReportWorker(job, due, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		cacheManager.Stop()
		if amqpClient != nil {
			amqpClient.Close()
		}
		if err := backendResult.Shutdown(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	})

	if amqpClient != nil {
		go func() {
			if err := reportWorker.Consume(ctx, amqpClient); err != nil {
				logger.Error("Report request consumption failed", "error", err)
			}
		}()
	} else {
		logger.Info("Skipping on-demand report requests - no AMQP client available")
	}

	reportWorker.Run(ctx, cfg.ReportCheckInterval)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Report worker stopped")
}
