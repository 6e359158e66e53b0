package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dbuddy"

const (
	sourceLabel = "source"
	resultLabel = "result"
	stageLabel  = "stage"
)

// Metrics holds the prometheus collectors of the inspector. A nil *Metrics
// is valid and records nothing, which keeps the core usable without a
// registry.
type Metrics struct {
	eventsIngested  *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	historyTrimmed  *prometheus.CounterVec
	historySize     *prometheus.GaugeVec
	transportErrors *prometheus.CounterVec
	processLookups  *prometheus.CounterVec
	queryDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Events accepted into an ingestion channel",
		}, []string{sourceLabel}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the ingestion channel was full",
		}, []string{sourceLabel}),
		historyTrimmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_trimmed_total",
			Help:      "Events removed from the head of the history",
		}, []string{sourceLabel}),
		historySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_size",
			Help:      "Events currently retained per source",
		}, []string{sourceLabel}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Transport failures per source",
		}, []string{sourceLabel}),
		processLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_lookups_total",
			Help:      "External process lookups by outcome",
		}, []string{resultLabel}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent deriving the displayed sequence",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.016, 0.033, 0.1},
		}, []string{stageLabel}),
	}
	reg.MustRegister(
		m.eventsIngested,
		m.eventsDropped,
		m.historyTrimmed,
		m.historySize,
		m.transportErrors,
		m.processLookups,
		m.queryDuration,
	)
	return m
}

func (m *Metrics) EventIngested(source string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(source).Inc()
}

func (m *Metrics) EventDropped(source string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(source).Inc()
}

// EventsDropped counts n events lost in one go.
func (m *Metrics) EventsDropped(source string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.eventsDropped.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) HistoryTrimmed(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.historyTrimmed.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) HistorySize(source string, n int) {
	if m == nil {
		return
	}
	m.historySize.WithLabelValues(source).Set(float64(n))
}

func (m *Metrics) TransportError(source string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) ProcessLookup(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.processLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveQuery(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(stage).Observe(d.Seconds())
}
