package tests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/ingest"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/sink"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/testutils"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/throttler"
)

func TestThrottler_EndToEnd_Flow(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var msgs []kafka.Message
	for i, rate := range []float64{1499.0, 1500.0, 1500.5} {
		val, err := json.Marshal(models.PriceTick{Symbol: "USD/ETH", Rate: rate, SeqID: int64(i + 1)})
		require.NoError(t, err)
		msgs = append(msgs, kafka.Message{Key: []byte("USD/ETH"), Value: val})
	}
	// Use Mock Reader because spinning up real Kafka is heavy/complex for unit tests
	reader := &testutils.MockKafkaReader{Messages: msgs}

	logger := zap.NewNop()
	d := throttler.NewDispatcher(logger, throttler.Config{Name: "it", Metrics: throttler.NewMetrics(nil, "it")})
	defer d.Close()

	sub := rdb.Subscribe(context.Background(), models.PriceChannel("USD/ETH"))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	require.NoError(t, d.Subscribe(sink.NewRedisSink(rdb, time.Hour, time.Second)))

	ing := ingest.NewIngestor(logger, reader, d)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = ing.Run(ctx)
		close(done)
	}()

	// Delivery is async and may coalesce, but the last rate always lands
	require.Eventually(t, func() bool {
		raw, err := mr.Get(models.PriceKey("USD/ETH"))
		if err != nil {
			return false
		}
		var tick models.PriceTick
		return json.Unmarshal([]byte(raw), &tick) == nil && tick.Rate == 1500.5
	}, time.Second, 10*time.Millisecond)

	require.True(t, mr.TTL(models.PriceKey("USD/ETH")) > 0)

	select {
	case msg := <-sub.Channel():
		var tick models.PriceTick
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &tick))
		require.Equal(t, "USD/ETH", tick.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no price published")
	}

	cancel()
	<-done
}
