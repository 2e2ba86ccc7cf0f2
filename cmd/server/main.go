// Package main is the entry point for the Foresight prediction service.
//
// Startup order:
// 1. Load configuration from the environment (.env supported)
// 2. Wire stores, coordinators, channels and the scheduler via di.Wire
// 3. Start the HTTP server, the scheduler and the Kafka listener
// 4. Wait for SIGINT/SIGTERM, stop the scheduler, then shut down in reverse order
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/foresight/internal/channels/handlers"
	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/di"
	predictionhandlers "github.com/aristath/foresight/internal/prediction/handlers"
	"github.com/aristath/foresight/internal/server"
	"github.com/aristath/foresight/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Foresight")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	srv := server.New(server.Config{
		Log:      log,
		Port:     cfg.Port,
		DevMode:  cfg.DevMode,
		DataDir:  cfg.DataDir,
		Jobs:     container.Scheduler,
		Health:   container,
		Gatherer: container.Registry,
		Modules: []server.RouteRegistrar{
			predictionhandlers.NewHandler(container.Prediction, log),
			handlers.NewHandler(container.Dispatcher, container.WhatsApp, container.Telegram, log),
		},
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if container.Listener != nil {
		container.Listener.Start(ctx)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// No new job runs may start while the server drains
	container.Scheduler.Stop()

	// Stop accepting requests so no new channel work reaches the dispatcher
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	cancel()
	if err := container.Close(); err != nil {
		log.Error().Err(err).Msg("Error releasing dependencies")
	}

	log.Info().Msg("Server stopped")
}
