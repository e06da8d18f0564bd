package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"carechat/infrastructure/config"
	"carechat/infrastructure/di"
	"carechat/pkg/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, level, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.EnableTracing {
		shutdown, err := observability.InitTracing(ctx, "carechat-api", cfg.Environment, cfg.TracingEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	// Initialize dependency container
	container, cleanup, err := di.InitializeContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize container", zap.Error(err))
	}
	defer cleanup()

	// WriteTimeout stays off: turn streams last as long as the backend talks.
	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           container.Router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("backend", container.Backend.Name()),
			zap.String("store", cfg.StoreKind),
			zap.String("dispatcher", cfg.DispatcherKind),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.ConfigFile != "" {
		watcher := config.NewWatcher(cfg.ConfigFile, level, logger)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}
