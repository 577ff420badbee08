package gateway

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/hub"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/protocol"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/testutils"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/throttler"
)

func returnsWithin(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", what, d)
	}
}

func TestClient_StalledSocketDoesNotWedgeHub(t *testing.T) {
	server, peer := net.Pipe()
	defer peer.Close() // never read from

	d := throttler.NewDispatcher(zap.NewNop(), throttler.Config{GracePeriod: 100 * time.Millisecond})
	defer d.Close()
	h := hub.NewHub(testutils.NewMockStore(), d, zap.NewNop())
	tickers := map[string]bool{"USD/TRY": true}

	c := NewClient(server, h, zap.NewNop(), tickers, 1)
	c.writeWait = 100 * time.Millisecond
	go c.writePump()

	// First message stalls the write, second fills the buffer
	require.NoError(t, c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck}))
	_ = c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck})

	returnsWithin(t, 2*time.Second, "HandleCommand", func() {
		h.HandleCommand(c, protocol.WSRequest{
			Action:  protocol.ActionSubscribe,
			Payload: protocol.RequestPayload{Symbols: []string{"USD/TRY"}},
		}, tickers)
	})

	// The failed write must release every sender
	require.ErrorIs(t, c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck}), ErrClientClosed)

	returnsWithin(t, time.Second, "Publish", func() {
		h.Publish(models.PriceTick{Symbol: "USD/TRY", Rate: 8.1})
	})
	require.Equal(t, 1, h.Watchers("USD/TRY"))

	returnsWithin(t, time.Second, "Unregister", func() { h.Unregister(c) })
	require.Zero(t, h.Watchers("USD/TRY"))
	require.Zero(t, d.Len())
}
