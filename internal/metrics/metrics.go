package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts API requests by route and status code
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Total number of API requests processed",
	}, []string{"route", "status"})

	// RequestDuration tracks request handling latency by route
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Request handling duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// AuthFailuresTotal counts rejected credentials by kind (api_key, admin)
	AuthFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_auth_failures_total",
		Help: "Total number of rejected authentication attempts",
	}, []string{"kind"})

	// KeyRotationsTotal counts completed credential rotations
	KeyRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_key_rotations_total",
		Help: "Total number of completed agency api key rotations",
	})

	// RateLimitChecksTotal counts rate-limit decisions by action and outcome
	RateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limit_checks_total",
		Help: "Total number of rate limit checks",
	}, []string{"action", "outcome"}) // outcome: "allowed" or "rejected"

	// IdempotentReplaysTotal counts responses served from the replay cache
	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_idempotent_replays_total",
		Help: "Total number of responses replayed from the idempotency cache",
	})

	// TokenVerificationsTotal counts signed-url verifications by verdict
	TokenVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_token_verifications_total",
		Help: "Total number of signed-url token verifications",
	}, []string{"verdict"}) // "valid", "invalid", "expired", "mismatch"

	// TokensMintedTotal counts signed-url tokens minted
	TokensMintedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_tokens_minted_total",
		Help: "Total number of signed-url tokens minted",
	})

	// StoreUp reports durable store reachability (1 = healthy)
	StoreUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_store_up",
		Help: "Whether the durable store responded to the last health probe",
	})
)

// RecordRateLimitCheck records one rate-limit decision
func RecordRateLimitCheck(action string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	RateLimitChecksTotal.WithLabelValues(action, outcome).Inc()
}

// RecordTokenVerification records one signed-url verification verdict
func RecordTokenVerification(verdict string) {
	TokenVerificationsTotal.WithLabelValues(verdict).Inc()
}
