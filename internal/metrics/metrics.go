package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "budget_watch"

const (
	JOB_BUDGET_ALERTS   = "budget_alerts"
	JOB_MONTHLY_REPORTS = "monthly_reports"
)

type Metrics struct {
	registry *prometheus.Registry

	AlertChecks   prometheus.Counter
	AlertsSent    *prometheus.CounterVec
	ReportsSent   *prometheus.CounterVec
	BatchErrors   *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
}

// New registers every collector on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AlertChecks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "budget_checks_total",
			Help:      "Number of per-user budget checks performed.",
		}),
		AlertsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "budget_alerts_sent_total",
			Help:      "Budget alert emails accepted by the mailer, by alert type.",
		}, []string{"type"}),
		ReportsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "reports_sent_total",
			Help:      "Monthly report emails accepted by the mailer, by outcome (full or fallback).",
		}, []string{"outcome"}),
		BatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "batch_user_errors_total",
			Help:      "Per-user failures recorded during batch runs.",
		}, []string{"job"}),
		BatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a complete batch run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
