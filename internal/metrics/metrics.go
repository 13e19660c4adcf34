// Package metrics exposes prometheus collectors for chat.db access and the
// change watcher. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates query, decode and watcher counters.
type Metrics struct {
	registry *prometheus.Registry

	queryDuration   *prometheus.HistogramVec
	queryErrors     *prometheus.CounterVec
	decodeFallbacks *prometheus.CounterVec
	signals         prometheus.Counter
	polls           *prometheus.CounterVec
	pollRows        prometheus.Counter
	pollDuration    prometheus.Histogram
	cursor          prometheus.Gauge
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imsg_chatdb_query_duration_seconds",
				Help:    "chat.db query duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imsg_chatdb_query_errors_total",
				Help: "Total number of failed chat.db queries",
			},
			[]string{"op"},
		),
		decodeFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imsg_decode_fallbacks_total",
				Help: "Rows whose text or sender came from a fallback source",
			},
			[]string{"source"},
		),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imsg_watch_signals_total",
			Help: "Filesystem signals received by watchers",
		}),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imsg_watch_polls_total",
				Help: "Watcher polls by outcome",
			},
			[]string{"outcome"},
		),
		pollRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imsg_watch_rows_total",
			Help: "Rows emitted by watchers",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imsg_watch_poll_duration_seconds",
			Help:    "Watcher poll duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imsg_watch_cursor_rowid",
			Help: "Highest message ROWID delivered by the most recent poll",
		}),
	}

	m.registry.MustRegister(
		m.queryDuration,
		m.queryErrors,
		m.decodeFallbacks,
		m.signals,
		m.polls,
		m.pollRows,
		m.pollDuration,
		m.cursor,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveQuery(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.queryErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) DecodeFallback(source string) {
	if m == nil {
		return
	}
	m.decodeFallbacks.WithLabelValues(source).Inc()
}

func (m *Metrics) Signal() {
	if m == nil {
		return
	}
	m.signals.Inc()
}

// ObservePoll records one watcher poll.
func (m *Metrics) ObservePoll(rows int, cursor int64, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
	if err != nil {
		m.polls.WithLabelValues("error").Inc()
		return
	}
	m.polls.WithLabelValues("ok").Inc()
	m.pollRows.Add(float64(rows))
	m.cursor.Set(float64(cursor))
}
