package hub

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/protocol"
	"github.com/evgeniymelnikov/traderimo-test-task/cmd/gateway/internal/repository"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
	"github.com/evgeniymelnikov/traderimo-test-task/pkg/throttler"
)

type ClientInterface interface {
	ID() string
	SendJSON(v interface{}) error
	Close()
}

// watcher is the listener the dispatcher sees for one client.
// It forwards only the symbols the client asked for.
type watcher struct {
	client ClientInterface

	mu      sync.RWMutex
	symbols map[string]bool
}

func (w *watcher) OnPrice(symbol string, rate float64) error {
	w.mu.RLock()
	watched := w.symbols[symbol]
	w.mu.RUnlock()
	if !watched {
		return nil
	}

	return w.client.SendJSON(protocol.WSResponse{
		Type: protocol.TypeTicker,
		Data: models.PriceTick{Symbol: symbol, Rate: rate},
	})
}

func (w *watcher) set(symbol string, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if on {
		w.symbols[symbol] = true
	} else {
		delete(w.symbols, symbol)
	}
}

type Hub struct {
	watchers map[ClientInterface]*watcher
	refCount map[string]int

	store      repository.PriceStore
	dispatcher throttler.PriceProcessor
	logger     *zap.Logger
	mu         sync.RWMutex
}

func NewHub(store repository.PriceStore, dispatcher throttler.PriceProcessor, logger *zap.Logger) *Hub {
	return &Hub{
		watchers:   make(map[ClientInterface]*watcher),
		refCount:   make(map[string]int),
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run pumps the upstream feed into the dispatcher until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.store.RunPubSub(ctx, h.Publish)
}

// Publish forwards a tick if at least one client watches its symbol.
func (h *Hub) Publish(tick models.PriceTick) {
	h.mu.RLock()
	watched := h.refCount[tick.Symbol] > 0
	h.mu.RUnlock()
	if !watched {
		return
	}

	if err := h.dispatcher.OnPrice(tick.Symbol, tick.Rate); err != nil {
		h.logger.Debug("Dropping upstream tick", zap.String("symbol", tick.Symbol), zap.Error(err))
	}
}

// Watchers returns how many clients currently watch symbol.
func (h *Hub) Watchers(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.refCount[symbol]
}

// HandleCommand applies req and replies to client. The reply is sent after
// the hub lock is released, since a send may block on a slow socket.
func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest, validTickers map[string]bool) {
	var resp protocol.WSResponse
	switch req.Action {
	case protocol.ActionSubscribe:
		resp = h.handleSubscribe(client, req, validTickers)
	case protocol.ActionUnsubscribe:
		resp = h.handleUnsubscribe(client, req)
	case protocol.ActionUnsubscribeAll:
		resp = h.handleUnsubscribeAll(client, req)
	default:
		resp = errorResponse(req.ID, "Unknown action: "+req.Action)
	}

	if err := client.SendJSON(resp); err != nil {
		h.logger.Debug("Reply not sent", zap.String("client", client.ID()), zap.String("type", resp.Type), zap.Error(err))
	}
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest, validTickers map[string]bool) protocol.WSResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	w := h.watchers[client]

	var valid []string
	for _, s := range req.Payload.Symbols {
		if validTickers[s] {
			// Idempotency: Ignore if already subscribed
			if w != nil && w.symbols[s] {
				continue
			}
			valid = append(valid, s)
		}
	}

	if len(valid) == 0 {
		return errorResponse(req.ID, "No valid/new symbols provided")
	}

	if w == nil {
		w = &watcher{client: client, symbols: make(map[string]bool)}
		if err := h.dispatcher.Subscribe(w); err != nil {
			h.logger.Error("Failed to subscribe client", zap.String("client", client.ID()), zap.Error(err))
			return errorResponse(req.ID, "Subscription unavailable")
		}
		h.watchers[client] = w
	}

	for _, sym := range valid {
		w.set(sym, true)
		h.refCount[sym]++
	}

	return ackResponse(req.ID, fmt.Sprintf("Subscribed to %v", valid))
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) protocol.WSResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []string
	if w, ok := h.watchers[client]; ok {
		for _, sym := range req.Payload.Symbols {
			if w.symbols[sym] {
				w.set(sym, false)
				removed = append(removed, sym)
				h.decreaseRefCount(sym)
			}
		}
	}

	if len(removed) == 0 {
		return errorResponse(req.ID, fmt.Sprintf("Not subscribed to: %v", req.Payload.Symbols))
	}
	return ackResponse(req.ID, fmt.Sprintf("Unsubscribed from %v", removed))
}

func (h *Hub) handleUnsubscribeAll(client ClientInterface, req protocol.WSRequest) protocol.WSResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	// The client stays registered with the dispatcher, it just watches nothing
	if w, ok := h.watchers[client]; ok {
		w.mu.Lock()
		for sym := range w.symbols {
			h.decreaseRefCount(sym)
		}
		w.symbols = make(map[string]bool)
		w.mu.Unlock()
	}
	return ackResponse(req.ID, "Unsubscribed from all symbols")
}

// Unregister drops the client and stops its delivery goroutine.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	w, ok := h.watchers[client]
	if ok {
		for sym := range w.symbols {
			h.decreaseRefCount(sym)
		}
		delete(h.watchers, client)
	}
	h.mu.Unlock()

	// Close first so a send blocked on a full buffer returns before we wait on it
	client.Close()

	if ok {
		if err := h.dispatcher.Unsubscribe(w); err != nil {
			h.logger.Warn("Client delivery did not stop in time", zap.String("client", client.ID()), zap.Error(err))
		}
	}
}

func (h *Hub) decreaseRefCount(symbol string) {
	h.refCount[symbol]--
	if h.refCount[symbol] <= 0 {
		delete(h.refCount, symbol)
	}
}

func ackResponse(id, msg string) protocol.WSResponse {
	return protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: "success", Message: msg}
}

func errorResponse(id, msg string) protocol.WSResponse {
	return protocol.WSResponse{Type: protocol.TypeError, ID: id, Message: msg}
}
