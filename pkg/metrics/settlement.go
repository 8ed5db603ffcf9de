package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics tracks the settlement worker pipeline.
type SettlementMetrics struct {
	settled      prometheus.Counter
	failed       prometheus.Counter
	skipped      *prometheus.CounterVec
	fetchRetries prometheus.Counter
	duration     prometheus.Histogram
	queueDepth   prometheus.Gauge
}

// NewSettlementMetrics registers the worker metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	settled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_orders_settled_total",
		Help: "Orders settled and recorded in the ledger.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_orders_failed_total",
		Help: "Orders that aborted during settlement processing.",
	})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_orders_skipped_total",
		Help: "Orders skipped without settlement.",
	}, []string{"reason"})
	fetchRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_order_fetch_retries_total",
		Help: "Retried order-detail fetches.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Time spent settling one order.",
		Buckets: prometheus.DefBuckets,
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_queue_depth",
		Help: "Pending entries in the command queue.",
	})
	reg.MustRegister(settled, failed, skipped, fetchRetries, duration, queueDepth)
	return &SettlementMetrics{
		settled:      settled,
		failed:       failed,
		skipped:      skipped,
		fetchRetries: fetchRetries,
		duration:     duration,
		queueDepth:   queueDepth,
	}
}

func (m *SettlementMetrics) IncSettled() {
	if m == nil || m.settled == nil {
		return
	}
	m.settled.Inc()
}

func (m *SettlementMetrics) IncFailed() {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.Inc()
}

// IncSkipped counts routine non-settlements: duplicates, pre-cutoff orders,
// missing timestamps.
func (m *SettlementMetrics) IncSkipped(reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *SettlementMetrics) IncFetchRetry() {
	if m == nil || m.fetchRetries == nil {
		return
	}
	m.fetchRetries.Inc()
}

func (m *SettlementMetrics) ObserveDuration(d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *SettlementMetrics) SetQueueDepth(depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
