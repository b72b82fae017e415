// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command mindsim starts the CascadiaMind orchestrator HTTP server.
//
// This is the main entry point for the containerized simulation service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - MINDSIM_PORT: HTTP server port (default: 12210)
//   - MINDSIM_SEED_PATH: taxonomy seed file (default: embedded seed)
//   - MINDSIM_WATCH_SEED: hot-reload the seed file on change (default: false)
//   - MINDSIM_DATA_DIR: run history directory (default: in-memory, ephemeral)
//   - MINDSIM_AUTH_TOKEN: bearer token for /v1 routes (default: open access)
//   - MINDSIM_RATE_LIMIT_RPS: per-client request rate (default: disabled)
//   - MINDSIM_RATE_LIMIT_BURST: per-client burst size (default: disabled)
//   - MINDSIM_ENABLE_METRICS: expose /metrics (default: true)
//   - MINDSIM_RETENTION_ENABLED: sweep expired sessions (default: false)
//   - MINDSIM_RETENTION_INTERVAL: sweep cadence (default: 1h)
//   - MINDSIM_RETENTION_MAX_AGE: session age cutoff (default: 720h)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector, or "stdout" (default: disabled)
//
// # Usage
//
//	# Build
//	go build -o mindsim ./cmd/mindsim
//
//	# Run
//	./mindsim
//
//	# Or via container
//	podman-compose up mindsim
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/CascadiaAI/CascadiaMind/services/orchestrator"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:              getEnvInt("MINDSIM_PORT", 12210),
		SeedPath:          os.Getenv("MINDSIM_SEED_PATH"),
		WatchSeed:         getEnvBool("MINDSIM_WATCH_SEED", false),
		DataDir:           os.Getenv("MINDSIM_DATA_DIR"),
		AuthToken:         os.Getenv("MINDSIM_AUTH_TOKEN"),
		RateLimitRPS:      getEnvFloat("MINDSIM_RATE_LIMIT_RPS", 0),
		RateLimitBurst:    getEnvInt("MINDSIM_RATE_LIMIT_BURST", 0),
		EnableMetrics:     getEnvBool("MINDSIM_ENABLE_METRICS", true),
		RetentionEnabled:  getEnvBool("MINDSIM_RETENTION_ENABLED", false),
		RetentionInterval: getEnvDuration("MINDSIM_RETENTION_INTERVAL", 0),
		RetentionMaxAge:   getEnvDuration("MINDSIM_RETENTION_MAX_AGE", 0),
		OTelEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	slog.Info("Starting mindsim orchestrator",
		"port", cfg.Port,
		"seed_path", cfg.SeedPath,
		"data_dir", cfg.DataDir,
		"metrics", cfg.EnableMetrics,
		"retention", cfg.RetentionEnabled,
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}

	// Drain in-flight requests on SIGINT/SIGTERM, then let Run return.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		slog.Info("Shutting down mindsim orchestrator", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			slog.Error("Shutdown did not complete cleanly", "error", err)
		}
	}()

	if err := svc.Run(); err != nil {
		log.Fatalf("Orchestrator error: %v", err)
	}
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
