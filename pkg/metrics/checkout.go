package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcomes used as the "outcome" label.
const (
	CheckoutOutcomeSuccess           = "success"
	CheckoutOutcomeEmptyCart         = "empty_cart"
	CheckoutOutcomeInsufficientStock = "insufficient_stock"
	CheckoutOutcomePersistenceError  = "persistence_error"
	CheckoutOutcomeInvalid           = "invalid"
)

// CheckoutMetrics records checkout attempts, latency and units sold.
type CheckoutMetrics struct {
	attempts  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	unitsSold prometheus.Counter
}

// NewCheckoutMetrics registers the checkout collectors. A nil registerer yields
// a recorder whose methods are no-ops.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Checkout transaction duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	unitsSold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_units_sold_total",
		Help: "Units removed from stock by successful checkouts.",
	})
	reg.MustRegister(attempts, duration, unitsSold)
	return &CheckoutMetrics{
		attempts:  attempts,
		duration:  duration,
		unitsSold: unitsSold,
	}
}

// Observe counts one attempt and records how long it took.
func (c *CheckoutMetrics) Observe(outcome string, took time.Duration) {
	if c == nil || c.attempts == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	c.attempts.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(took.Seconds())
}

// AddUnitsSold adds n to the units sold counter.
func (c *CheckoutMetrics) AddUnitsSold(n int) {
	if c == nil || c.unitsSold == nil || n <= 0 {
		return
	}
	c.unitsSold.Add(float64(n))
}
