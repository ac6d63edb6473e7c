package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	CallsAllowed      prometheus.Counter
	CallsDenied       *prometheus.CounterVec
	WebhooksRejected  *prometheus.CounterVec
	WebhooksAccepted  prometheus.Counter
	RecordsPurged     *prometheus.CounterVec
	SweepFailures     *prometheus.CounterVec
	GateLatencySecs   prometheus.Histogram
	ConsentGrants     prometheus.Counter
	ConsentRevocation prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CallsAllowed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callguard_calls_allowed_total",
			Help: "Outbound call attempts the compliance gate allowed",
		}),
		CallsDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callguard_calls_denied_total",
			Help: "Outbound call attempts the compliance gate denied, by reason",
		}, []string{"reason"}),
		WebhooksRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callguard_webhooks_rejected_total",
			Help: "Inbound webhooks that failed verification, by reason",
		}, []string{"reason"}),
		WebhooksAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callguard_webhooks_accepted_total",
			Help: "Inbound webhooks that passed signature verification",
		}),
		RecordsPurged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callguard_retention_purged_total",
			Help: "Records deleted by the retention sweeper, by category",
		}, []string{"category"}),
		SweepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callguard_retention_sweep_failures_total",
			Help: "Per-category sweep failures",
		}, []string{"category"}),
		GateLatencySecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "callguard_gate_latency_seconds",
			Help:    "Latency of compliance gate decisions",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ConsentGrants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callguard_consent_grants_total",
			Help: "Consent grants recorded",
		}),
		ConsentRevocation: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callguard_consent_revocations_total",
			Help: "Consent revocations recorded",
		}),
	}
}
