package aggregator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flush results used as the "result" label.
const (
	resultSuccess          = "success"
	resultEmpty            = "empty"
	resultSkipped          = "skipped"
	resultStorageError     = "storage_error"
	resultValidationFailed = "validation_failed"
	resultWriteFailed      = "write_failed"
)

// Metrics holds the aggregator's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ViewsRecorded     prometheus.Counter
	ViewsDeduplicated prometheus.Counter
	RecordErrors      prometheus.Counter
	Flushes           *prometheus.CounterVec
	EventsDropped     prometheus.Counter
	EventsUpserted    prometheus.Counter
	IPLookupFailures  prometheus.Counter
	PendingEvents     prometheus.Gauge
	FlushDuration     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ViewsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "view_agent_views_recorded_total",
			Help: "Views appended to the pending queue",
		}),
		ViewsDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "view_agent_views_deduplicated_total",
			Help: "Views ignored because the item was already recorded today",
		}),
		RecordErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "view_agent_record_errors_total",
			Help: "Views lost to local storage failures",
		}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "view_agent_flushes_total",
			Help: "Flush attempts by result",
		}, []string{"result"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "view_agent_events_dropped_total",
			Help: "Pending events dropped because their item no longer exists",
		}),
		EventsUpserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "view_agent_events_upserted_total",
			Help: "Events sent to the remote store",
		}),
		IPLookupFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "view_agent_ip_lookup_failures_total",
			Help: "Public IP lookups that fell back to the unknown sentinel",
		}),
		PendingEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "view_agent_pending_events",
			Help: "Events waiting in the local queue",
		}),
		FlushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "view_agent_flush_duration_seconds",
			Help:    "Wall time of flushes that reached the remote store",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) recorded() {
	if m != nil {
		m.ViewsRecorded.Inc()
	}
}

func (m *Metrics) deduplicated() {
	if m != nil {
		m.ViewsDeduplicated.Inc()
	}
}

func (m *Metrics) recordError() {
	if m != nil {
		m.RecordErrors.Inc()
	}
}

func (m *Metrics) flushed(result string) {
	if m != nil {
		m.Flushes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) dropped(n int) {
	if m != nil {
		m.EventsDropped.Add(float64(n))
	}
}

func (m *Metrics) upserted(n int) {
	if m != nil {
		m.EventsUpserted.Add(float64(n))
	}
}

func (m *Metrics) ipLookupFailed() {
	if m != nil {
		m.IPLookupFailures.Inc()
	}
}

func (m *Metrics) pending(n int) {
	if m != nil {
		m.PendingEvents.Set(float64(n))
	}
}

func (m *Metrics) flushDuration(d time.Duration) {
	if m != nil {
		m.FlushDuration.Observe(d.Seconds())
	}
}
