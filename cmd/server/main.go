// Package main implements the entry point for the genqueue server, which runs
// image generation jobs one at a time on a shared compute resource and streams
// their results to HTTP clients.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/platform/logger"
)

func main() {
	fmt.Println("genqueue server starting...")

	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to create application", "error", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		appLogger.Error("Application stopped with error", "error", err)
		os.Exit(1)
	}
}

// initializeApp loads configuration and sets up structured logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)
	l.Debug("Queue configuration",
		"profile", cfg.Queue.Profile,
		"memory_sampling", cfg.Queue.MemorySampling,
		"collect_stats", cfg.Queue.CollectStats)

	return cfg, l, nil
}
