package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

// Compile-time check to ensure RedisStore implements PriceStore
var _ PriceStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex // Protects pubsub
	pubsub *redis.PubSub
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
	}
}

// GetLatest fetches the latest stored rate for a list of symbols (MGET)
func (r *RedisStore) GetLatest(ctx context.Context, symbols []string) ([]models.PriceTick, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = models.PriceKey(sym)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget latest prices: %w", err)
	}

	ticks := make([]models.PriceTick, 0, len(results))
	for i, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var tick models.PriceTick
		if err := json.Unmarshal([]byte(payload), &tick); err != nil {
			r.logger.Warn("Corrupt stored price", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

// RunPubSub listens on every price channel with one pattern subscription.
// The throttler upstream already coalesces, so the gateway takes them all
// and lets its own dispatcher pick what each client sees.
func (r *RedisStore) RunPubSub(ctx context.Context, onTick func(models.PriceTick)) error {
	ps := r.client.PSubscribe(ctx, models.PriceChannelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("psubscribe %s*: %w", models.PriceChannelPrefix, err)
	}

	r.mu.Lock()
	r.pubsub = ps
	r.mu.Unlock()
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			symbol, ok := models.SymbolFromChannel(msg.Channel)
			if !ok {
				continue
			}

			var tick models.PriceTick
			if err := json.Unmarshal([]byte(msg.Payload), &tick); err != nil {
				r.logger.Warn("Dropping malformed price message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			// The channel name is authoritative
			tick.Symbol = symbol

			onTick(tick)
		}
	}
}

func (r *RedisStore) Close() error {
	r.mu.Lock()
	ps := r.pubsub
	r.mu.Unlock()

	if ps != nil {
		// RunPubSub may have closed it already
		if err := ps.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			return err
		}
	}
	return r.client.Close()
}
