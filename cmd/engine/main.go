package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/cloudburst-engine/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/cloudburst-engine/internal/adapter/kafka"
	"github.com/couchcryptid/cloudburst-engine/internal/adapter/redisstore"
	"github.com/couchcryptid/cloudburst-engine/internal/config"
	"github.com/couchcryptid/cloudburst-engine/internal/deployment"
	"github.com/couchcryptid/cloudburst-engine/internal/engine"
	"github.com/couchcryptid/cloudburst-engine/internal/observability"
	"github.com/couchcryptid/cloudburst-engine/internal/propagation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := redisstore.NewFromAddr(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	// Alert streaming is feature-flagged via KAFKA_BROKERS / KAFKA_ALERTS_TOPIC.
	var publisher engine.AlertPublisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.AlertPublishingEnabled() {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPublisher
		logger.Info("alert publishing enabled", "topic", cfg.KafkaAlertsTopic)
	} else {
		logger.Info("alert publishing disabled")
	}

	deployCfg := deployment.DefaultConfig()
	deployCfg.ProbabilityThreshold = cfg.DeployProbabilityThreshold
	deployCfg.SustainDuration = cfg.DeploySustainDuration
	deployCfg.MaxWindSpeed = cfg.DeployMaxWindSpeed
	deployCfg.TargetAltitudeM = cfg.TargetAltitudeM
	deployCfg.AscentRateMS = cfg.AscentRateMS
	deployCfg.DescentRateMS = cfg.DescentRateMS

	eng := engine.New(engine.Options{
		TickInterval: cfg.TickInterval,
		Propagation: propagation.Config{
			Threshold: cfg.PropagationThreshold,
			MaxHops:   cfg.PropagationMaxHops,
		},
		Deployment: deployCfg,
	}, store, publisher, clockwork.NewRealClock(), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := eng.Run(ctx); err != nil {
			logger.Error("engine error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("shutdown complete")
}
