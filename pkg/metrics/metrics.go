// Package metrics exposes Prometheus collectors for the import pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the import collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RowsProcessed  *prometheus.CounterVec
	Duplicates     *prometheus.CounterVec
	Previews       *prometheus.CounterVec
	Commits        *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	ActiveSessions prometheus.Gauge
	InboxFiles     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement_import",
			Name:      "rows_total",
			Help:      "Statement rows by extraction outcome.",
		}, []string{"outcome"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement_import",
			Name:      "duplicates_total",
			Help:      "Transactions flagged as duplicates, by kind.",
		}, []string{"kind"}),
		Previews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement_import",
			Name:      "previews_total",
			Help:      "Preview attempts by result.",
		}, []string{"result"}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement_import",
			Name:      "commits_total",
			Help:      "Commit attempts by result.",
		}, []string{"result"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statement_import",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per import stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement_import",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statement_import",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "statement_import",
			Name:      "active_sessions",
			Help:      "Import sessions awaiting commit.",
		}),
		InboxFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statement_import",
			Name:      "inbox_files_total",
			Help:      "Inbox files processed by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RowsProcessed, m.Duplicates, m.Previews, m.Commits, m.StageDuration,
		m.HTTPRequests, m.HTTPDuration, m.ActiveSessions, m.InboxFiles,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// AddRows counts rows for an outcome ("parsed", "skipped", "failed").
func (m *Metrics) AddRows(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsProcessed.WithLabelValues(outcome).Add(float64(n))
}

// AddDuplicates counts duplicates of a kind ("existing", "batch").
func (m *Metrics) AddDuplicates(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Duplicates.WithLabelValues(kind).Add(float64(n))
}

// Preview counts a preview attempt.
func (m *Metrics) Preview(result string) {
	if m == nil {
		return
	}
	m.Previews.WithLabelValues(result).Inc()
}

// Commit counts a commit attempt.
func (m *Metrics) Commit(result string) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(result).Inc()
}

// SessionOpened and SessionClosed track the number of pending sessions.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

// InboxFile counts an inbox file by result.
func (m *Metrics) InboxFile(result string) {
	if m != nil {
		m.InboxFiles.WithLabelValues(result).Inc()
	}
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(route string, code int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
