package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/ingest"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/sink"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/config"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/throttler"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 200,
		MaxBytes: 10e6,
		MaxWait:  200 * time.Millisecond,
		// Auto-commit; duplicates are dropped by SeqID
		CommitInterval:    time.Second,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})

	dispatcher := throttler.NewDispatcher(logger, throttler.Config{
		Name:        "throttler",
		GracePeriod: cfg.Throttler.GracePeriod,
		Metrics:     throttler.NewMetrics(prometheus.DefaultRegisterer, "throttler"),
	})

	if err := dispatcher.Subscribe(sink.NewRedisSink(rdb, cfg.Redis.TTL, cfg.Throttler.SinkTimeout)); err != nil {
		logger.Fatal("Failed to subscribe Redis sink", zap.Error(err))
	}
	if cfg.Throttler.LogSink {
		if err := dispatcher.Subscribe(sink.NewLogSink(logger, "log")); err != nil {
			logger.Fatal("Failed to subscribe log sink", zap.Error(err))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		logger.Info("Metrics server listening", zap.String("addr", cfg.Metrics.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ing := ingest.NewIngestor(logger, reader, dispatcher)
	if err := ing.Run(ctx); err != nil {
		logger.Error("Ingestor failed", zap.Error(err))
	}
	logger.Info("Shutdown signal received, stopping throttler...")

	logger.Info("Closing Kafka Reader...")
	if err := reader.Close(); err != nil {
		logger.Error("Error closing reader", zap.Error(err))
	}

	logger.Info("Stopping subscribers...")
	if err := dispatcher.Close(); err != nil {
		logger.Warn("Some subscribers did not stop in time", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Closing Redis...")
	rdb.Close()

	logger.Info("Throttler exited cleanly")
}
