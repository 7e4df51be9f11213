package main

import (
	"context"
	"log"

	"batch-transcriber/internal/bootstrap"
	"batch-transcriber/internal/config"
	"batch-transcriber/internal/observability"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	telemetry, err := observability.NewTelemetry()
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	metrics, err := observability.NewBatchMetrics(telemetry.Meter)
	if err != nil {
		log.Fatalf("init metrics: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := observability.Serve(ctx, cfg.Metrics.Addr, observability.NewRouter(telemetry.Handler), logger); err != nil {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	app, err := bootstrap.New(cfg, logger, metrics)
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
