package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"carechat/infrastructure/config"
	"carechat/infrastructure/di"
	asynqqueue "carechat/infrastructure/messaging/asynq"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the extraction worker")
	}

	logger, _, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	container, cleanup, err := di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize container", zap.Error(err))
	}
	defer cleanup()

	server, err := asynqqueue.NewServer(cfg.RedisURL, cfg.ExtractionWorkers, container.Profiles, logger)
	if err != nil {
		logger.Fatal("Failed to create worker", zap.Error(err))
	}

	logger.Info("Extraction worker started",
		zap.String("backend", container.Backend.Name()),
		zap.Int("concurrency", cfg.ExtractionWorkers),
	)
	if err := server.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("Extraction worker stopped")
}
