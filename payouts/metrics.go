package payouts

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	batches    *prometheus.CounterVec
	payments   *prometheus.CounterVec
	calculated prometheus.Counter
	settleTime prometheus.Histogram
}

var (
	metricsOnce     sync.Once
	metricsRegistry *Metrics
)

// DefaultMetrics returns the lazily registered collectors on the default
// prometheus registry.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsRegistry = NewMetrics(prometheus.DefaultRegisterer)
	})
	return metricsRegistry
}

// NewMetrics builds a collector set and registers it with reg, if non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {

	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetrewards",
			Subsystem: "settlement",
			Name:      "batches_total",
			Help:      "Settlement batches attempted, by outcome.",
		}, []string{"outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "assetrewards",
			Subsystem: "settlement",
			Name:      "payments_completed_total",
			Help:      "Payments marked completed, by how they completed.",
		}, []string{"kind"}),
		calculated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "assetrewards",
			Subsystem: "payouts",
			Name:      "calculated_total",
			Help:      "Payout records computed and stored.",
		}),
		settleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "assetrewards",
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Time taken by one settlement run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.batches, m.payments, m.calculated, m.settleTime)
	}

	return m
}

func (m *Metrics) observeBatch(outcome string) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observePayments(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.payments.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) observeCalculated() {
	if m == nil {
		return
	}
	m.calculated.Inc()
}

func (m *Metrics) observeSettle(started time.Time) {
	if m == nil {
		return
	}
	m.settleTime.Observe(time.Since(started).Seconds())
}
