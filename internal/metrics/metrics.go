// Package metrics provides Prometheus instrumentation for the moderation
// service. It exposes counters for submissions, verdicts, enforcement actions
// and report intake, and a histogram for verdict processing latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsTotal counts review submissions, labeled by provider, kind
	// and outcome: "submitted", "abandoned" or "failed".
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_moderation_submissions_total",
		Help: "Review submissions by provider, kind and outcome",
	}, []string{"provider", "kind", "outcome"})

	// VerdictsTotal counts processed verdicts by provider and severity.
	// Unparseable or provider-failed verdicts are counted as "failed".
	VerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_moderation_verdicts_total",
		Help: "Processed verdicts by provider and severity",
	}, []string{"provider", "severity"})

	// EnforcementTotal counts enforcement attempts, labeled by target kind,
	// action ("ban" or "tag") and outcome: "applied", "noop", "blocked" or
	// "error".
	EnforcementTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_moderation_enforcement_total",
		Help: "Enforcement actions by target, action and outcome",
	}, []string{"target", "action", "outcome"})

	// ReportsTotal counts report intake by kind and outcome: "received",
	// "admitted" or "throttled".
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_moderation_reports_total",
		Help: "Abuse reports by kind and outcome",
	}, []string{"kind", "outcome"})

	// ProcessingLatency records the time spent processing one verdict.
	ProcessingLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whisper_moderation_processing_seconds",
		Help:    "Verdict processing latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		VerdictsTotal,
		EnforcementTotal,
		ReportsTotal,
		ProcessingLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
