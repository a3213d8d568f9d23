// Package metrics exposes MercuryStream's Prometheus metrics. Every
// recording function is safe to call even when metrics wiring is absent
// from a given binary (e.g. the replay and stress tools) because a nil
// *Metrics receiver turns every method into a no-op.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for one processor instance.
type Metrics struct {
	eventsTotal   prometheus.Counter
	dropsTotal    prometheus.Counter
	anomaliesTotal *prometheus.CounterVec
	incidentsTotal prometheus.Counter
	latencyMS     prometheus.Histogram
	queueDepthMax prometheus.Gauge
}

// New returns a fresh metric set. It registers nothing itself; Registry
// registers the collectors against a private registry, so repeated calls
// (e.g. in tests) never collide with global state.
func New() *Metrics {
	m := &Metrics{
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mercurystream_events_total",
			Help: "Total events processed",
		}),
		dropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mercurystream_drops_total",
			Help: "Total dropped events",
		}),
		anomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mercurystream_anomalies_total",
			Help: "Total anomalies detected by type",
		}, []string{"type"}),
		incidentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mercurystream_incidents_total",
			Help: "Total incidents captured",
		}),
		latencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mercurystream_latency_ms",
			Help:    "Ingest-to-receive event latency",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		queueDepthMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mercurystream_queue_depth_max",
			Help: "Maximum queue depth across bus subscribers",
		}),
	}
	return m
}

// Registry builds a fresh prometheus.Registerer with m's collectors
// registered, for use with promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if m == nil {
		return reg
	}
	reg.MustRegister(m.eventsTotal, m.dropsTotal, m.anomaliesTotal, m.incidentsTotal, m.latencyMS, m.queueDepthMax)
	return reg
}

// Handler returns the HTTP handler serving this instance's metrics in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
}

// RecordEvent records a processed event, and if latencyMS is non-negative,
// an ingest-to-receive latency observation.
func (m *Metrics) RecordEvent(latencyMS int64, haveLatency bool) {
	if m == nil {
		return
	}
	m.eventsTotal.Inc()
	if haveLatency && latencyMS >= 0 {
		m.latencyMS.Observe(float64(latencyMS))
	}
}

// RecordDrop records one dropped event (e.g. a bus subscriber's full queue).
func (m *Metrics) RecordDrop() {
	if m == nil {
		return
	}
	m.dropsTotal.Inc()
}

// RecordDrops records n dropped events in one observation, for callers that
// poll a cumulative drop counter on an interval rather than being invoked
// once per drop.
func (m *Metrics) RecordDrops(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.dropsTotal.Add(float64(n))
}

// Anomaly type labels, matching the reference exposition format's values.
const (
	AnomalyDuplicate    = "duplicate"
	AnomalyOutOfOrder   = "out_of_order"
	AnomalyGap          = "sequence_gap"
	AnomalyDrift        = "schema_drift"
	AnomalyLatencySpike = "latency_spike"
)

// RecordAnomaly records one detection of the given anomaly type.
func (m *Metrics) RecordAnomaly(anomalyType string) {
	if m == nil {
		return
	}
	m.anomaliesTotal.WithLabelValues(anomalyType).Inc()
}

// RecordIncident records one incident bundle capture.
func (m *Metrics) RecordIncident() {
	if m == nil {
		return
	}
	m.incidentsTotal.Inc()
}

// SetQueueDepth updates the maximum observed bus subscriber queue depth.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepthMax.Set(float64(depth))
}
