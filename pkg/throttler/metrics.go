package throttler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "throttler"

// Metrics groups the dispatcher collectors. A nil *Metrics records nothing.
type Metrics struct {
	TicksReceived    prometheus.Counter
	TicksRejected    prometheus.Counter
	TicksCoalesced   prometheus.Counter
	Deliveries       prometheus.Counter
	DeliveryFailures prometheus.Counter
	ShutdownTimeouts prometheus.Counter
	Subscriptions    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer, dispatcher string) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"dispatcher": dispatcher}

	return &Metrics{
		TicksReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "ticks_received_total",
			Help:        "Valid ticks accepted by OnPrice",
			ConstLabels: labels,
		}),
		TicksRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "ticks_rejected_total",
			Help:        "Ticks rejected at the OnPrice boundary",
			ConstLabels: labels,
		}),
		TicksCoalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "ticks_coalesced_total",
			Help:        "Pending rates overwritten in place before delivery",
			ConstLabels: labels,
		}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "deliveries_total",
			Help:        "Successful listener callbacks",
			ConstLabels: labels,
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "delivery_failures_total",
			Help:        "Listener callbacks that returned an error or panicked",
			ConstLabels: labels,
		}),
		ShutdownTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "shutdown_timeouts_total",
			Help:        "Unsubscribes that released a subscription with a delivery still in flight",
			ConstLabels: labels,
		}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "subscriptions",
			Help:        "Currently registered listeners",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) received() {
	if m != nil {
		m.TicksReceived.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.TicksRejected.Inc()
	}
}

func (m *Metrics) coalesced() {
	if m != nil {
		m.TicksCoalesced.Inc()
	}
}

func (m *Metrics) delivered() {
	if m != nil {
		m.Deliveries.Inc()
	}
}

func (m *Metrics) deliveryFailed() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) shutdownTimedOut() {
	if m != nil {
		m.ShutdownTimeouts.Inc()
	}
}

func (m *Metrics) subscribed() {
	if m != nil {
		m.Subscriptions.Inc()
	}
}

func (m *Metrics) unsubscribed() {
	if m != nil {
		m.Subscriptions.Dec()
	}
}
