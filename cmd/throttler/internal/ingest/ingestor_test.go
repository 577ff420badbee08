package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/ingest"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/throttler/internal/testutils"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

func toMessages(t *testing.T, ticks ...models.PriceTick) []kafka.Message {
	t.Helper()
	var msgs []kafka.Message
	for _, tick := range ticks {
		val, err := json.Marshal(tick)
		require.NoError(t, err)
		msgs = append(msgs, kafka.Message{Key: []byte(tick.Symbol), Value: val})
	}
	return msgs
}

func runIngestor(t *testing.T, reader *testutils.MockKafkaReader, out *testutils.MockListener) {
	t.Helper()
	ing := ingest.NewIngestor(zap.NewNop(), reader, out)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, ing.Run(ctx))
}

func TestIngestor_ForwardsAndDeduplicates(t *testing.T) {
	reader := &testutils.MockKafkaReader{Messages: toMessages(t,
		models.PriceTick{Symbol: "USD/TRY", Rate: 8.1, SeqID: 1},
		models.PriceTick{Symbol: "USD/TRY", Rate: 8.1, SeqID: 1},
		models.PriceTick{Symbol: "USD/TRY", Rate: 8.2, SeqID: 2},
		models.PriceTick{Symbol: "USD/BTC", Rate: 30000, SeqID: 1},
		models.PriceTick{Symbol: "USD/TRY", Rate: 8.0, SeqID: 1},
	)}
	out := &testutils.MockListener{}

	runIngestor(t, reader, out)

	require.Equal(t, []testutils.Price{
		{Symbol: "USD/TRY", Rate: 8.1},
		{Symbol: "USD/TRY", Rate: 8.2},
		{Symbol: "USD/BTC", Rate: 30000},
	}, out.Snapshot())
}

func TestIngestor_ZeroSeqIDIsNeverDuplicate(t *testing.T) {
	reader := &testutils.MockKafkaReader{Messages: toMessages(t,
		models.PriceTick{Symbol: "USD/ETH", Rate: 1900},
		models.PriceTick{Symbol: "USD/ETH", Rate: 1900},
	)}
	out := &testutils.MockListener{}

	runIngestor(t, reader, out)

	require.Len(t, out.Snapshot(), 2)
}

func TestIngestor_InvalidJSON(t *testing.T) {
	reader := &testutils.MockKafkaReader{Messages: []kafka.Message{
		{Key: []byte("USD/TRY"), Value: []byte("{broken-json")},
	}}
	out := &testutils.MockListener{}

	runIngestor(t, reader, out)

	require.Empty(t, out.Snapshot())
}

type flakyListener struct {
	testutils.MockListener
	failures int
}

func (f *flakyListener) OnPrice(symbol string, rate float64) error {
	_ = f.MockListener.OnPrice(symbol, rate)
	if f.failures > 0 {
		f.failures--
		return errors.New("downstream rejected")
	}
	return nil
}

func TestIngestor_RejectedTickDoesNotAdvanceSeq(t *testing.T) {
	reader := &testutils.MockKafkaReader{Messages: toMessages(t,
		models.PriceTick{Symbol: "USD/TRY", Rate: 8.1, SeqID: 5},
		models.PriceTick{Symbol: "USD/TRY", Rate: 8.1, SeqID: 5},
		models.PriceTick{Symbol: "USD/TRY", Rate: 8.1, SeqID: 5},
	)}
	out := &flakyListener{failures: 1}

	ing := ingest.NewIngestor(zap.NewNop(), reader, out)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, ing.Run(ctx))

	// First attempt failed, the redelivery goes through, the third copy is a duplicate
	require.Len(t, out.Snapshot(), 2)
}

func TestIngestor_StopsOnClosedReader(t *testing.T) {
	reader := &testutils.MockKafkaReader{Closed: true}
	ing := ingest.NewIngestor(zap.NewNop(), reader, &testutils.MockListener{})

	require.NoError(t, ing.Run(context.Background()))
}
