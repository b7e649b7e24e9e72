package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/infrastructure/config"
	"github.com/Itzadetunji/mind-map-sub001/infrastructure/di"
	"github.com/Itzadetunji/mind-map-sub001/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Tracing must be installed before the container asks for a tracer
	var tracing *observability.TracerProvider
	if cfg.Tracing.Enabled {
		tracing, err = observability.InitTracing(ctx, observability.TracingOptions{
			ServiceName: "mindmap-editor",
			Environment: cfg.Environment,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	go container.Hub.Run()
	if container.Events != nil {
		go container.Events.Run()
	}
	go container.Sessions.RunJanitor(ctx, cfg.Session.JanitorInterval)

	var watcher *config.Watcher
	if cfg.ConfigFile != "" {
		watcher, err = config.NewWatcher(cfg, config.LoadConfig, logger)
		if err != nil {
			logger.Warn("Config hot reload disabled", zap.Error(err))
		} else {
			watcher.OnChange(container.ApplyConfig)
		}
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      container.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("auth", cfg.Auth.Enabled),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Stop the janitor before the final flush so the two do not race
	cancel()
	if watcher != nil {
		watcher.Stop()
	}

	if err := container.Sessions.Shutdown(shutdownCtx); err != nil {
		logger.Error("Unsaved changes lost on shutdown", zap.Error(err))
	}
	container.Hub.Stop()
	if container.Events != nil {
		if err := container.Events.Close(shutdownCtx); err != nil {
			logger.Warn("Save events not delivered before shutdown", zap.Error(err))
		}
	}

	if tracing != nil {
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error("Tracer shutdown error", zap.Error(err))
		}
	}

	_ = logger.Sync()
	log.Println("Server stopped")
}
