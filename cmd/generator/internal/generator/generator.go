package generator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

const (
	defaultRate = 1.0
	// volatility is the maximum relative move of one tick.
	volatility = 0.002
)

// RateGenerator publishes a random walk of currency pair rates to Kafka.
type RateGenerator struct {
	logger   *zap.Logger
	writer   KafkaWriter
	pairs    []string
	rates    map[string]float64
	rand     Rand
	clock    Clock
	interval time.Duration
	seq      map[string]int64
}

func NewRateGenerator(
	logger *zap.Logger,
	writer KafkaWriter,
	pairs []string,
	baseRates map[string]float64,
	rnd Rand,
	clock Clock,
	interval time.Duration,
) *RateGenerator {
	rates := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		rates[p] = defaultRate
		if r, ok := baseRates[p]; ok {
			rates[p] = r
		}
	}

	return &RateGenerator{
		logger:   logger,
		writer:   writer,
		pairs:    pairs,
		rates:    rates,
		rand:     rnd,
		clock:    clock,
		interval: interval,
		seq:      make(map[string]int64),
	}
}

func (g *RateGenerator) Run(ctx context.Context) {
	g.logger.Info("Generator Started", zap.Strings("pairs", g.pairs), zap.Duration("interval", g.interval))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if len(g.pairs) == 0 {
				g.clock.Sleep(1 * time.Second)
				continue
			}

			tick := g.next()
			payload, err := json.Marshal(tick)
			if err != nil {
				g.logger.Error("JSON Marshal Error", zap.Error(err))
				continue
			}

			// Keying by symbol keeps one pair on one partition, so SeqID stays ordered
			err = g.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(tick.Symbol),
				Value: payload,
			})
			if err != nil {
				g.logger.Error("Kafka Write Error", zap.Error(err), zap.String("symbol", tick.Symbol))
			} else {
				g.logger.Debug("Sent tick", zap.String("symbol", tick.Symbol), zap.Float64("rate", tick.Rate))
			}

			g.clock.Sleep(g.interval)
		}
	}
}

// next moves one randomly chosen pair by at most ±volatility.
func (g *RateGenerator) next() models.PriceTick {
	symbol := g.pairs[g.rand.Intn(len(g.pairs))]
	move := (g.rand.Float64() - 0.5) * 2 * volatility
	g.rates[symbol] *= 1 + move
	g.seq[symbol]++

	return models.PriceTick{
		Symbol:    symbol,
		Rate:      g.rates[symbol],
		Timestamp: g.clock.Now().UnixMicro(),
		SeqID:     g.seq[symbol],
	}
}
