package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "draftledger", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "draftledger", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	// VersionsCreated counts committed versions by operation (create|append|revert).
	VersionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "draftledger", Name: "versions_created_total", Help: "Number of document versions written, by operation."},
		[]string{"op"},
	)
	VersionConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "draftledger", Name: "version_conflicts_total", Help: "Version number collisions detected by storage, by outcome (retried|failed)."},
		[]string{"outcome"},
	)
	LockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "draftledger", Name: "document_lock_wait_seconds", Help: "Time spent waiting for the per-document write lock.", Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8)},
		[]string{"locker"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(VersionsCreated)
	reg.MustRegister(VersionConflicts)
	reg.MustRegister(LockWait)
}
