package throttler

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evgeniymelnikov/traderimo-test-task/pkg/models"
)

// subscription owns one listener's queue and its delivery goroutine.
type subscription struct {
	id       string
	listener PriceListener
	queue    *coalescingQueue

	alive atomic.Bool
	stop  chan struct{}
	done  chan struct{}

	logger  *zap.Logger
	metrics *Metrics
}

func newSubscription(l PriceListener, logger *zap.Logger, metrics *Metrics) *subscription {
	id := uuid.NewString()
	return &subscription{
		id:       id,
		listener: l,
		queue:    newCoalescingQueue(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("subscription_id", id)),
		metrics:  metrics,
	}
}

func (s *subscription) start() {
	s.alive.Store(true)
	go s.run()
}

func (s *subscription) run() {
	defer close(s.done)

	for {
		tick, ok := s.queue.TakeNext()
		if !ok {
			select {
			case <-s.stop:
				return
			case <-s.queue.Ready():
				continue
			}
		}

		// Cancellation wins over anything taken after it.
		select {
		case <-s.stop:
			return
		default:
		}

		s.deliver(tick)
	}
}

// deliver invokes the listener once. Failures stay inside this subscription.
func (s *subscription) deliver(tick models.PriceTick) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.deliveryFailed()
			s.logger.Error("Listener panicked",
				zap.String("symbol", tick.Symbol),
				zap.Float64("rate", tick.Rate),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if err := s.listener.OnPrice(tick.Symbol, tick.Rate); err != nil {
		s.metrics.deliveryFailed()
		s.logger.Warn("Listener failed to handle price",
			zap.String("symbol", tick.Symbol),
			zap.Float64("rate", tick.Rate),
			zap.Error(err),
		)
		return
	}

	s.metrics.delivered()
	s.logger.Debug("Delivered", zap.String("symbol", tick.Symbol), zap.Float64("rate", tick.Rate))
}

// cancel stops delivery and waits up to grace for an in-flight callback.
// The subscription is released whether or not the wait succeeds.
func (s *subscription) cancel(grace time.Duration) error {
	if !s.alive.CompareAndSwap(true, false) {
		return nil
	}

	s.queue.Close()
	close(s.stop)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		s.metrics.shutdownTimedOut()
		s.logger.Warn("Delivery still in flight after grace period, releasing subscription",
			zap.Duration("grace_period", grace),
		)
		return fmt.Errorf("%w: subscription %s after %s", ErrGracePeriodExceeded, s.id, grace)
	}
}
