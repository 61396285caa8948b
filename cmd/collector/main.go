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
	"github.com/Guizzs26/go-textmend/internal/service"
	"github.com/Guizzs26/go-textmend/pkg/infra"
	"github.com/Guizzs26/go-textmend/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	logger.Info("🔧 Initializing Firebird Collector Service...",
		"unit_id", cfg.UnitID,
		"policy", cfg.InvalidBytePolicy.String(),
		"tables", len(cfg.Tables),
	)

	// Canceled on SIGINT (Ctrl+C) or SIGTERM (Docker stop)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fbRepo, err := db.NewFirebirdRepository(cfg.FirebirdURL, logger)
	if err != nil {
		logger.Error("FATAL: Failed to connect to Firebird database", "error", err)
		os.Exit(1)
	}
	defer fbRepo.Close()

	var brokerUp atomic.Bool
	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, brokerUp.Load, logger)

	opts := service.CollectorOptions{
		UnitID:       cfg.UnitID,
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		Policy:       cfg.InvalidBytePolicy,
		Tables:       cfg.Tables,
		Binary:       cfg.BinaryColumns,
	}

	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for ctx.Err() == nil {
		rabbit, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, logger)
		if err != nil {
			metrics.BrokerReconnections.Inc()
			logger.Error("RabbitMQ link failure, retrying", "attempt", backoff.Attempts()+1, "error", err)
			if !backoff.Wait(ctx) {
				break
			}
			continue
		}
		backoff.Reset()
		brokerUp.Store(true)

		logger.Info("🚀 Collector is running. Polling Firebird for changes...")
		runUntilUnhealthy(ctx, rabbit, service.NewFBCollectorService(fbRepo, rabbit, opts, logger))

		brokerUp.Store(false)
		rabbit.Close()
	}

	logger.Info("✅ Collector service shut down successfully.")
}

// runUntilUnhealthy runs the collector until ctx ends or the broker link drops
func runUntilUnhealthy(ctx context.Context, rabbit *broker.RabbitMQClient, svc *service.FBCollectorService) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if !rabbit.IsHealthy() {
					slog.Warn("Broker link lost, reconnecting")
					cancel()
					return
				}
			}
		}
	}()

	svc.Run(runCtx)
}
