// Package metrics provides Prometheus instrumentation for an extraction run.
//
// Each run owns a Metrics value backed by a dedicated registry, so repeated
// runs inside one process (tests, embedding programs) never share counters.
// All recording methods are safe on a nil *Metrics, which disables
// instrumentation without branching at call sites.
//
// # Basic Usage
//
//	m := metrics.New()
//	m.ObserveRequest("2xx", time.Since(start))
//	m.SetBudget(burstRemaining, dailyRemaining)
//	defer m.WriteTextfile("/var/lib/node_exporter/ghlexport.prom")
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ghlexport"

// Metrics bundles the collectors for one run.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	RetriesTotal       *prometheus.CounterVec
	BurstRemaining     prometheus.Gauge
	DailyRemaining     prometheus.Gauge
	GovernorPauses     prometheus.Counter
	PagesFetched       prometheus.Counter
	TruncatedPagings   prometheus.Counter
	FanOutSkips        *prometheus.CounterVec
	DomainRuns         *prometheus.CounterVec
	DomainRecords      *prometheus.GaugeVec
	DomainDuration     *prometheus.HistogramVec
	PersistenceErrors  *prometheus.CounterVec
	NotificationErrors prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Completed upstream HTTP attempts by status class.",
		}, []string{"status_class"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Upstream HTTP attempt latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Retries scheduled by reason.",
		}, []string{"reason"}),
		BurstRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_burst_remaining",
			Help:      "Burst requests remaining as last reported by the upstream.",
		}),
		DailyRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ratelimit_daily_remaining",
			Help:      "Daily requests remaining as last reported by the upstream.",
		}),
		GovernorPauses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_pauses_total",
			Help:      "Burst-window pauses taken by the rate governor.",
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages fetched by the paginator.",
		}),
		TruncatedPagings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pagination_truncated_total",
			Help:      "Paginations stopped by the page safety cap.",
		}),
		FanOutSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_skipped_parents_total",
			Help:      "Parents whose children could not be fetched.",
		}, []string{"domain"}),
		DomainRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_runs_total",
			Help:      "Domain extractions by final status.",
		}, []string{"domain", "status"}),
		DomainRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "domain_records",
			Help:      "Records extracted by the last run of each domain.",
		}, []string{"domain"}),
		DomainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "domain_duration_seconds",
			Help:      "Wall time per domain extraction.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"domain"}),
		PersistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Failed snapshot saves by backend.",
		}, []string{"backend"}),
		NotificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_errors_total",
			Help:      "Failed run event publications.",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.RetriesTotal,
		m.BurstRemaining, m.DailyRemaining, m.GovernorPauses,
		m.PagesFetched, m.TruncatedPagings, m.FanOutSkips,
		m.DomainRuns, m.DomainRecords, m.DomainDuration,
		m.PersistenceErrors, m.NotificationErrors,
	)

	return m
}

// ObserveRequest records one completed HTTP attempt.
func (m *Metrics) ObserveRequest(statusClass string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(statusClass).Inc()
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetry records a scheduled retry.
func (m *Metrics) IncRetry(reason string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(reason).Inc()
}

// SetBudget records the latest quota headers.
func (m *Metrics) SetBudget(burstRemaining, dailyRemaining int) {
	if m == nil {
		return
	}
	m.BurstRemaining.Set(float64(burstRemaining))
	m.DailyRemaining.Set(float64(dailyRemaining))
}

// IncPause records a governor pause.
func (m *Metrics) IncPause() {
	if m == nil {
		return
	}
	m.GovernorPauses.Inc()
}

// IncPage records a fetched page.
func (m *Metrics) IncPage() {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
}

// IncTruncated records a pagination stopped by the safety cap.
func (m *Metrics) IncTruncated() {
	if m == nil {
		return
	}
	m.TruncatedPagings.Inc()
}

// IncFanOutSkip records a parent whose children were skipped.
func (m *Metrics) IncFanOutSkip(domain string) {
	if m == nil {
		return
	}
	m.FanOutSkips.WithLabelValues(domain).Inc()
}

// ObserveDomain records the outcome of one domain extraction.
func (m *Metrics) ObserveDomain(domain, status string, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.DomainRuns.WithLabelValues(domain, status).Inc()
	m.DomainRecords.WithLabelValues(domain).Set(float64(records))
	m.DomainDuration.WithLabelValues(domain).Observe(d.Seconds())
}

// IncPersistenceError records a failed save.
func (m *Metrics) IncPersistenceError(backend string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(backend).Inc()
}

// IncNotificationError records a failed event publication.
func (m *Metrics) IncNotificationError() {
	if m == nil {
		return
	}
	m.NotificationErrors.Inc()
}

// WriteTextfile dumps the registry in the Prometheus text format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}

// StatusClass maps an HTTP status code to a label value such as "2xx".
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code == 429:
		return "429"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "error"
	}
}
