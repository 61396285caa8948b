package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Guizzs26/go-textmend/internal/broker"
	"github.com/Guizzs26/go-textmend/internal/config"
	"github.com/Guizzs26/go-textmend/internal/db"
	"github.com/Guizzs26/go-textmend/internal/processor"
	"github.com/Guizzs26/go-textmend/pkg/infra"
	"github.com/Guizzs26/go-textmend/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔥 Sink initializing...", "version", "1.0.0")

	repo, err := db.NewPostgresRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("CRITICAL: Postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("CRITICAL: Schema setup failed", "error", err)
		os.Exit(1)
	}

	handler := processor.NewSyncHandler(repo, logger)

	var listening atomic.Bool
	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, listening.Load, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for ctx.Err() == nil {
		consumer, err := broker.NewRabbitMQConsumer(cfg.RabbitMQURL, handler, processor.ErrFatal, logger)
		if err != nil {
			metrics.BrokerReconnections.Inc()
			logger.Error("RabbitMQ connection failed, retrying...", "error", err)
			if !connBackoff.Wait(ctx) {
				break
			}
			continue
		}

		connBackoff.Reset()
		listening.Store(true)
		logger.Info("✅ Connected to Broker. Listening for events...")

		if err := consumer.Listen(ctx); err != nil {
			logger.Error("⚠️ Consumer connection lost", "error", err)
		}

		listening.Store(false)
		consumer.Close()
	}

	logger.Info("🛑 Sink stopped")
}
