package sink

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/testutils"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

func TestRedisSink_SetAndPublish(t *testing.T) {
	rdb := testutils.NewMockRedisClient()
	s := NewRedisSink(rdb, time.Hour, time.Second)
	s.now = func() time.Time { return time.UnixMicro(1700000000000000) }

	require.NoError(t, s.OnPrice("USD/TRY", 8.1))

	spy := rdb.PipelineSpy
	require.Equal(t, 1, spy.ExecCount)
	require.Equal(t, []string{"SET price:USD/TRY", "PUBLISH prices.USD/TRY"}, spy.RecordedCmds)
	require.Equal(t, time.Hour, spy.TTLs["price:USD/TRY"])

	var tick models.PriceTick
	require.NoError(t, json.Unmarshal([]byte(spy.Payloads["price:USD/TRY"]), &tick))
	require.Equal(t, models.PriceTick{Symbol: "USD/TRY", Rate: 8.1, Timestamp: 1700000000000000}, tick)
}

func TestRedisSink_ExecErrorIsReturned(t *testing.T) {
	rdb := testutils.NewMockRedisClient()
	boom := errors.New("connection reset")
	rdb.PipelineSpy.ExecErr = boom

	err := NewRedisSink(rdb, time.Hour, time.Second).OnPrice("USD/BTC", 30000)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "USD/BTC")
}
