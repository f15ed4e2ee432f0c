package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests            *prometheus.CounterVec
	CounterHandleRequestPanic  prometheus.Counter
	CounterRateLimitedRequests prometheus.Counter
	CounterAutosaves           prometheus.Counter
	CounterAutosaveFailures    prometheus.Counter
	CounterSessionsFinalized   prometheus.Counter
	CounterSessionsAbandoned   prometheus.Counter
	CounterDraftResyncs        prometheus.Counter

	// gauges
	GaugeRequests     prometheus.Gauge
	GaugeLifeSignal   prometheus.Gauge
	GaugeActiveDrafts prometheus.Gauge

	// histograms
	HistogramRequestDuration  *prometheus.HistogramVec
	HistogramAutosaveDuration prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("backend", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("backend", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}
	}

	return &Manager{
		CounterRequests: factory.NewCounterVec(
			counterOpts("request", "The total number of incoming requests"),
			[]string{"method", "status"},
		),
		CounterHandleRequestPanic:  factory.NewCounter(counterOpts("handle_request_panic", "The total number of serve request panics")),
		CounterRateLimitedRequests: factory.NewCounter(counterOpts("rate_limited_requests", "The total number of rate limited requests")),
		CounterAutosaves:           factory.NewCounter(counterOpts("draft_autosaves", "The total number of successful draft auto-saves")),
		CounterAutosaveFailures:    factory.NewCounter(counterOpts("draft_autosave_failures", "The total number of failed draft auto-saves")),
		CounterSessionsFinalized:   factory.NewCounter(counterOpts("sessions_finalized", "The total number of finalized workout sessions")),
		CounterSessionsAbandoned:   factory.NewCounter(counterOpts("sessions_abandoned", "The total number of abandoned workout sessions")),
		CounterDraftResyncs:        factory.NewCounter(counterOpts("draft_resyncs", "The total number of drafts replaced from the backend on re-sync")),

		GaugeRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "current_requests",
			Help:      "Current number of requests served",
		}),
		GaugeLifeSignal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "life_signal",
			Help:      "Shows whether the service is alive",
		}),
		GaugeActiveDrafts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_drafts",
			Help:      "Number of in-progress drafts held in memory",
		}),

		HistogramRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Histogram of response time for requests in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "status_code"}),
		HistogramAutosaveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "draft_autosave_duration_seconds",
			Help:      "Duration of a single draft auto-save in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}
