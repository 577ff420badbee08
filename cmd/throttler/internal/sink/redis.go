package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/throttler"
)

var _ throttler.PriceListener = (*RedisSink)(nil)

// RedisSink stores the latest delivered rate per symbol and republishes it.
// A slow Redis only slows this subscriber down; the dispatcher coalesces
// whatever piles up in the meantime.
type RedisSink struct {
	rdb     RedisClient
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

func NewRedisSink(rdb RedisClient, ttl, timeout time.Duration) *RedisSink {
	return &RedisSink{
		rdb:     rdb,
		ttl:     ttl,
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *RedisSink) OnPrice(symbol string, rate float64) error {
	payload, err := json.Marshal(models.PriceTick{
		Symbol:    symbol,
		Rate:      rate,
		Timestamp: s.now().UnixMicro(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", symbol, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// SET + PUBLISH in one round trip so readers of the key and the channel agree
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, models.PriceKey(symbol), payload, s.ttl) // TTL keeps abandoned pairs from piling up
	pipe.Publish(ctx, models.PriceChannel(symbol), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline for %s: %w", symbol, err)
	}
	return nil
}
