package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/generator/internal/generator"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/config"
)

// Starting points for the random walk; unknown pairs start at 1.0
var baseRates = map[string]float64{
	"USD/TRY": 8.1,
	"USD/BTC": 30000,
	"USD/ETH": 1900,
	"EUR/USD": 1.12,
	"USD/JPY": 109.5,
}

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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clock := generator.RealClock{}
	tc := generator.NewTopicCreator(logger, &generator.RealKafkaDialer{Dialer: kafka.DefaultDialer}, clock)
	tc.Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)

	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{}, // same pair, same partition
		// Batch to reduce network IO
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
	}

	gen := generator.NewRateGenerator(
		logger,
		writer,
		cfg.Generator.Pairs,
		baseRates,
		generator.NewRealRand(time.Now().UnixNano()),
		clock,
		cfg.Generator.Interval,
	)
	gen.Run(ctx)

	logger.Info("Shutdown signal received")

	// Flush the async buffer before exit
	if err := writer.Close(); err != nil {
		logger.Error("Error closing Kafka writer", zap.Error(err))
	} else {
		logger.Info("Kafka writer closed cleanly")
	}
}
