package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture outcomes as decided by the entitlement gate
	CaptureOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_capture_outcomes_total",
			Help: "Capture requests by kind and gate outcome (proceed, noop, redirect, failed)",
		},
		[]string{"kind", "outcome"},
	)

	CreditsConsumedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_credits_consumed_total",
			Help: "Total number of credits charged for successful captures",
		},
	)

	CreditResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_credit_resets_total",
			Help: "Total number of credit window resets",
		},
	)

	InvariantClampsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "atlas_invariant_clamps_total",
			Help: "Entitlement states clamped back into range after an invariant violation",
		},
	)

	// Analysis lifecycle
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_analyses_total",
			Help: "Finished analyses by kind and status (succeeded, failed, abandoned)",
		},
		[]string{"kind", "status"},
	)

	AnalysesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atlas_analyses_in_flight",
			Help: "Number of analyses currently pending",
		},
	)

	AnalysisDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_analysis_duration_seconds",
			Help:    "Time from analysis start to resolution",
			Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	// Paywall
	PaywallOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_paywall_outcomes_total",
			Help: "Paywall resolutions by outcome (purchased, dismissed)",
		},
		[]string{"outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atlas_web_sessions_active",
			Help: "Number of web sessions holding an entitlement gate",
		},
	)
)

// RecordCaptureOutcome records one gate decision.
func RecordCaptureOutcome(kind, outcome string) {
	CaptureOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordAnalysis records a resolved analysis and its duration.
func RecordAnalysis(kind, status string, seconds float64) {
	AnalysesTotal.WithLabelValues(kind, status).Inc()
	AnalysisDurationSeconds.WithLabelValues(kind).Observe(seconds)
}

// RecordPaywallOutcome records a paywall resolution.
func RecordPaywallOutcome(outcome string) {
	PaywallOutcomesTotal.WithLabelValues(outcome).Inc()
}
