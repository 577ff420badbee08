package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/protocol"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // acks and errors
	Tickers  []models.PriceTick
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if m.Closed {
		return errors.New("mock client closed")
	}

	resp, ok := v.(protocol.WSResponse)
	if !ok {
		return nil
	}
	if tick, isTick := resp.Data.(models.PriceTick); isTick && resp.Type == protocol.TypeTicker {
		m.Tickers = append(m.Tickers, tick)
		return nil
	}
	m.Messages = append(m.Messages, resp)
	return nil
}

func (m *MockClient) LastMsg() protocol.WSResponse {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return protocol.WSResponse{}
	}
	return m.Messages[len(m.Messages)-1]
}

func (m *MockClient) ReceivedTickers() []models.PriceTick {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]models.PriceTick(nil), m.Tickers...)
}

func (m *MockClient) IsClosed() bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Closed
}

// MockPriceStore simulates Redis
type MockPriceStore struct {
	Latest map[string]models.PriceTick
	Feed   chan models.PriceTick
	Err    error
	Mu     sync.Mutex
}

func NewMockStore() *MockPriceStore {
	return &MockPriceStore{
		Latest: make(map[string]models.PriceTick),
		Feed:   make(chan models.PriceTick, 16),
	}
}

func (m *MockPriceStore) GetLatest(ctx context.Context, symbols []string) ([]models.PriceTick, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	ticks := make([]models.PriceTick, 0, len(symbols))
	for _, s := range symbols {
		if tick, ok := m.Latest[s]; ok {
			ticks = append(ticks, tick)
		}
	}
	return ticks, nil
}

func (m *MockPriceStore) RunPubSub(ctx context.Context, onTick func(models.PriceTick)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-m.Feed:
			onTick(tick)
		}
	}
}

func (m *MockPriceStore) Close() error { return nil }

// BlockingClient models a socket whose send buffer never drains:
// every SendJSON blocks until Close.
type BlockingClient struct {
	IDVal string

	mu      sync.Mutex
	blocked int
	closed  chan struct{}
	once    sync.Once
}

func NewBlockingClient(id string) *BlockingClient {
	return &BlockingClient{IDVal: id, closed: make(chan struct{})}
}

func (b *BlockingClient) ID() string { return b.IDVal }

func (b *BlockingClient) Close() {
	b.once.Do(func() { close(b.closed) })
}

func (b *BlockingClient) SendJSON(v interface{}) error {
	b.mu.Lock()
	b.blocked++
	b.mu.Unlock()

	<-b.closed
	return errors.New("blocking client closed")
}

// Blocked returns how many sends have started blocking so far.
func (b *BlockingClient) Blocked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blocked
}

func (b *BlockingClient) IsClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}
