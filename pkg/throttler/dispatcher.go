package throttler

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

const DefaultGracePeriod = time.Second

// Compile-time check to ensure Dispatcher can be chained behind another one
var _ PriceProcessor = (*Dispatcher)(nil)

type Config struct {
	// Name labels log lines and metrics.
	Name string
	// GracePeriod bounds how long Unsubscribe waits for an in-flight callback.
	// Zero means DefaultGracePeriod.
	GracePeriod time.Duration
	Metrics     *Metrics
}

// Dispatcher broadcasts ticks to every subscribed listener without
// ever waiting on one of them.
type Dispatcher struct {
	subs  sync.Map // PriceListener -> *subscription
	count atomic.Int64

	closed      atomic.Bool
	gracePeriod time.Duration
	logger      *zap.Logger
	metrics     *Metrics
}

func NewDispatcher(logger *zap.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.Name != "" {
		logger = logger.With(zap.String("dispatcher", cfg.Name))
	}

	return &Dispatcher{
		gracePeriod: cfg.GracePeriod,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// OnPrice upserts the tick into every live subscription's queue.
// Invalid ticks are rejected before any queue is touched.
func (d *Dispatcher) OnPrice(symbol string, rate float64) error {
	tick := models.PriceTick{Symbol: symbol, Rate: rate}
	if err := tick.Validate(); err != nil {
		d.metrics.rejected()
		return err
	}
	d.metrics.received()

	d.subs.Range(func(_, v any) bool {
		if v.(*subscription).queue.Upsert(symbol, rate) == upsertReplaced {
			d.metrics.coalesced()
		}
		return true
	})
	return nil
}

// Subscribe registers l and starts its delivery goroutine.
// Subscribing an already registered listener is a no-op.
func (d *Dispatcher) Subscribe(l PriceListener) error {
	if err := checkListener(l); err != nil {
		return err
	}
	if d.closed.Load() {
		return ErrClosed
	}

	sub := newSubscription(l, d.logger, d.metrics)
	// Started before publishing so that a racing Unsubscribe always has a worker to stop.
	sub.start()

	if _, loaded := d.subs.LoadOrStore(l, sub); loaded {
		_ = sub.cancel(d.gracePeriod)
		d.logger.Debug("Listener already subscribed, ignoring")
		return nil
	}

	d.count.Add(1)
	d.metrics.subscribed()

	// Close may have swept the registry between the check above and the store.
	if d.closed.Load() {
		if v, ok := d.subs.LoadAndDelete(l); ok {
			_ = d.teardown(v.(*subscription))
		}
		return ErrClosed
	}

	d.logger.Info("New subscription", zap.String("subscription_id", sub.id))
	return nil
}

// Unsubscribe removes l and stops its delivery goroutine.
// Unknown listeners, including nil and value-typed ones that could never
// have been subscribed, are ignored. The returned error wraps
// ErrGracePeriodExceeded when an in-flight callback had to be abandoned.
func (d *Dispatcher) Unsubscribe(l PriceListener) error {
	if checkListener(l) != nil {
		return nil
	}

	v, ok := d.subs.LoadAndDelete(l)
	if !ok {
		return nil
	}
	return d.teardown(v.(*subscription))
}

// Subscribed reports whether l is currently registered.
func (d *Dispatcher) Subscribed(l PriceListener) bool {
	if checkListener(l) != nil {
		return false
	}
	_, ok := d.subs.Load(l)
	return ok
}

// Len returns the number of registered listeners.
func (d *Dispatcher) Len() int {
	// A teardown racing a fresh Subscribe may decrement before the increment lands.
	if n := d.count.Load(); n > 0 {
		return int(n)
	}
	return 0
}

// Close tears down every subscription concurrently. After Close,
// Subscribe fails with ErrClosed and OnPrice reaches nobody.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	d.subs.Range(func(k, _ any) bool {
		v, ok := d.subs.LoadAndDelete(k)
		if !ok {
			return true
		}

		wg.Add(1)
		go func(sub *subscription) {
			defer wg.Done()
			err := d.teardown(sub)

			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
		}(v.(*subscription))
		return true
	})
	wg.Wait()

	d.logger.Info("Dispatcher closed")
	return errs
}

func (d *Dispatcher) teardown(sub *subscription) error {
	d.count.Add(-1)
	d.metrics.unsubscribed()

	sub.logger.Info("Unsubscribing")
	if err := sub.cancel(d.gracePeriod); err != nil {
		return err
	}
	sub.logger.Info("Unsubscribed")
	return nil
}
