package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the insurance engine.
type Metrics struct {
	// --- Policy lifecycle ---
	PoliciesCreated   *prometheus.CounterVec
	PoliciesRejected  *prometheus.CounterVec
	PremiumsCollected *prometheus.CounterVec
	ActiveCoverage    prometheus.Gauge

	// --- Claims ---
	ClaimsSubmitted      *prometheus.CounterVec
	ClaimsRejected       *prometheus.CounterVec
	ClaimsPaid           *prometheus.CounterVec
	ClaimPayoutTotal     *prometheus.CounterVec
	ClaimProcessDuration prometheus.Histogram
	TransferFailures     prometheus.Counter

	// --- Solvency ---
	PoolBalance     prometheus.Gauge
	PoolUtilization prometheus.Gauge
	PoolStatus      *prometheus.GaugeVec
	CapacityChecks  *prometheus.CounterVec

	// --- Triggers & risk feed ---
	TriggerActivations    *prometheus.CounterVec
	TriggerDeactivations  *prometheus.CounterVec
	RiskUpdatesApplied    *prometheus.CounterVec
	RiskUpdatesRejected   *prometheus.CounterVec
	SignificantScoreMoves *prometheus.CounterVec
	IngestLatency         *prometheus.HistogramVec

	// --- HTTP API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
	APIErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	apiBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0,
	}

	ingestBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
	}

	return &Metrics{
		// Policy lifecycle
		PoliciesCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_policies_created_total",
			Help: "Policies successfully issued",
		}, []string{"protocol"}),

		PoliciesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_policies_rejected_total",
			Help: "Policy requests rejected (validation, capacity)",
		}, []string{"protocol", "reason"}),

		PremiumsCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_premiums_collected_total",
			Help: "Premium amount collected, fixed-point units",
		}, []string{"protocol"}),

		ActiveCoverage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "prae_active_coverage",
			Help: "Total outstanding coverage across eligible policies",
		}),

		// Claims
		ClaimsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_claims_submitted_total",
			Help: "Claims accepted into the pending state",
		}, []string{"trigger_type"}),

		ClaimsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_claims_rejected_total",
			Help: "Claims rejected, by reason",
		}, []string{"reason"}),

		ClaimsPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_claims_paid_total",
			Help: "Claims paid out",
		}, []string{"trigger_type"}),

		ClaimPayoutTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_claim_payout_amount_total",
			Help: "Payout amount transferred, fixed-point units",
		}, []string{"trigger_type"}),

		ClaimProcessDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "prae_claim_process_duration_seconds",
			Help:    "Automated claim processing end to end",
			Buckets: apiBuckets,
		}),

		TransferFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "prae_transfer_failures_total",
			Help: "Payout transfers that failed and left the claim pending",
		}),

		// Solvency
		PoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "prae_pool_balance",
			Help: "Current pool balance, fixed-point units",
		}),

		PoolUtilization: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "prae_pool_utilization",
			Help: "Active coverage / pool balance, ratio-scaled",
		}),

		PoolStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "prae_pool_status",
			Help: "1 for the current solvency status label, 0 otherwise",
		}, []string{"status"}),

		CapacityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_capacity_checks_total",
			Help: "Issuance and payout capacity gate outcomes",
		}, []string{"gate", "outcome"}),

		// Triggers & risk feed
		TriggerActivations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_trigger_activations_total",
			Help: "Trigger activations, by type",
		}, []string{"trigger_type"}),

		TriggerDeactivations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_trigger_deactivations_total",
			Help: "Trigger deactivations, by type",
		}, []string{"trigger_type"}),

		RiskUpdatesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_risk_updates_applied_total",
			Help: "Risk oracle updates applied to the registry",
		}, []string{"protocol"}),

		RiskUpdatesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_risk_updates_rejected_total",
			Help: "Risk oracle updates dropped (parse, validation)",
		}, []string{"reason"}),

		SignificantScoreMoves: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_risk_significant_moves_total",
			Help: "Score changes past the notification threshold",
		}, []string{"protocol", "direction"}),

		IngestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prae_ingest_latency_seconds",
			Help:    "NATS receive to store write complete",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		// HTTP API
		APIRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_api_requests_total",
			Help: "HTTP requests, by route and status code",
		}, []string{"route", "code"}),

		APIDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prae_api_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: apiBuckets,
		}, []string{"route"}),

		APIErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prae_api_errors_total",
			Help: "HTTP 5xx responses, by route",
		}, []string{"route"}),
	}
}

// ObservePool publishes a capacity report to the solvency gauges.
func (m *Metrics) ObservePool(balance, utilization int64, status string) {
	m.PoolBalance.Set(float64(balance))
	m.PoolUtilization.Set(float64(utilization))
	for _, s := range []string{"healthy", "moderate", "critical", "exceeded"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		m.PoolStatus.WithLabelValues(s).Set(v)
	}
}
