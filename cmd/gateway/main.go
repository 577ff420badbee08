package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/gateway"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/hub"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/repository"
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
	repo := repository.NewRedisStore(rdb, logger)

	// Every socket gets its own coalescing queue, so one slow browser
	// never holds back the others
	dispatcher := throttler.NewDispatcher(logger, throttler.Config{
		Name:        "gateway",
		GracePeriod: cfg.Throttler.GracePeriod,
		Metrics:     throttler.NewMetrics(prometheus.DefaultRegisterer, "gateway"),
	})

	wsHub := hub.NewHub(repo, dispatcher, logger)

	validTickers := make(map[string]bool)
	for _, t := range cfg.Gateway.ValidTickers {
		validTickers[t] = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := wsHub.Run(ctx); err != nil {
			logger.Error("Upstream feed stopped", zap.Error(err))
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Upgrade failed", zap.Error(err))
			return
		}

		client := gateway.NewClient(conn, wsHub, logger, validTickers, cfg.Gateway.SendBuffer)
		client.Start()
	})
	mux.HandleFunc("/prices", gateway.PricesHandler(repo, validTickers, logger))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, stopping gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	if err := dispatcher.Close(); err != nil {
		logger.Warn("Some clients did not stop in time", zap.Error(err))
	}
	if err := repo.Close(); err != nil {
		logger.Error("Error closing Redis", zap.Error(err))
	}

	logger.Info("Shutdown Complete")
}
