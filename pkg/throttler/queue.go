package throttler

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

type upsertResult uint8

const (
	upsertAppended upsertResult = iota
	upsertReplaced
	upsertDropped
)

// coalescingQueue holds at most one pending rate per symbol.
// Symbols are drained in the order they first became pending;
// a repeated upsert overwrites the rate but keeps the position.
//
// Any number of goroutines may call Upsert. Only the owning
// delivery goroutine calls TakeNext.
type coalescingQueue struct {
	mu      sync.Mutex
	pending *orderedmap.OrderedMap[string, float64]
	closed  bool

	// ready holds at most one wake-up token for the consumer.
	ready chan struct{}
}

func newCoalescingQueue() *coalescingQueue {
	return &coalescingQueue{
		pending: orderedmap.New[string, float64](),
		ready:   make(chan struct{}, 1),
	}
}

func (q *coalescingQueue) Upsert(symbol string, rate float64) upsertResult {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return upsertDropped
	}
	_, present := q.pending.Set(symbol, rate)
	q.mu.Unlock()

	if present {
		return upsertReplaced
	}

	select {
	case q.ready <- struct{}{}:
	default:
		// Consumer already has a pending wake-up.
	}
	return upsertAppended
}

// TakeNext removes the oldest pending symbol with its latest rate.
func (q *coalescingQueue) TakeNext() (models.PriceTick, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	oldest := q.pending.Oldest()
	if oldest == nil {
		return models.PriceTick{}, false
	}
	q.pending.Delete(oldest.Key)
	return models.PriceTick{Symbol: oldest.Key, Rate: oldest.Value}, true
}

func (q *coalescingQueue) Clear() {
	q.mu.Lock()
	q.pending = orderedmap.New[string, float64]()
	q.mu.Unlock()
}

// Close clears the queue and drops every later Upsert.
func (q *coalescingQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.Clear()
}

func (q *coalescingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Ready is signalled after an Upsert appends a new symbol.
// Wake-ups may be spurious; callers must re-check with TakeNext.
func (q *coalescingQueue) Ready() <-chan struct{} {
	return q.ready
}
