package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/zoff-tech/order-event-hub/pkg/api"
	"github.com/zoff-tech/order-event-hub/pkg/broker"
	"github.com/zoff-tech/order-event-hub/pkg/config"
	"github.com/zoff-tech/order-event-hub/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration from file or environment
	cfg, err := config.LoadFromFile("./cmd/event-hub")
	if err != nil {
		log.Fatal("Error loading configuration: ", err)
	}

	logger, err := newLogger(cfg.Server.DevMode)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	// Initialize telemetry (tracing)
	shutdownTelemetry, err := telemetry.Init(cfg.Observability)
	if err != nil {
		log.Fatal("Failed to initialize telemetry: ", err)
	}
	defer shutdownTelemetry()

	// Startup broker probe. Failure is logged and the hub keeps serving:
	// publishers open their own connections on demand.
	var health api.HealthChecker
	if cfg.Broker.Type == "rabbitmq" {
		mgr := broker.NewConnectionManager(&cfg.Broker, &cfg.Publish, logger)
		if !mgr.Connect(ctx) {
			logger.Warn("broker unreachable at startup, continuing in degraded mode")
		}
		defer mgr.Close()
		health = mgr
	}

	publisher, err := broker.NewPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize publisher", zap.Error(err))
	}
	defer publisher.Close()

	server := api.NewServer(cfg, publisher, health, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func newLogger(devMode bool) (*zap.Logger, error) {
	if devMode {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
