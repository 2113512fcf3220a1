package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Quota enforcement Prometheus metrics.
var (
	ReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "reservations_total",
			Help:      "Reservation decisions by outcome",
		},
		[]string{"resource", "outcome", "reason"},
	)

	ReserveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quotagate",
			Name:      "reserve_duration_seconds",
			Help:      "Reserve latency in seconds, replays included",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"resource"},
	)

	ReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "releases_total",
			Help:      "Release calls by outcome",
		},
		[]string{"outcome"},
	)

	CASConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "cas_conflicts_total",
			Help:      "Compare-and-swap version conflicts",
		},
		[]string{"target"}, // "plan" / "lot"
	)

	InvariantViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "invariant_violations_total",
			Help:      "Counter writes rejected for leaving their bounds",
		},
	)

	CycleResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "cycle_resets_total",
			Help:      "Per-(account, resource) cycle reset attempts",
		},
		[]string{"result"}, // applied, initialized, noop, unknown_plan, error
	)

	LotsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quotagate",
			Name:      "lots_expired_total",
			Help:      "Credit lots marked expired by the sweep",
		},
	)
)

var registerOnce sync.Once

// Register adds the HTTP and quota collectors to reg. Repeated calls are no-ops.
// Must be called once from main; the enforcer increments these whether or not
// they are registered.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			httpInFlight,
			ReservationsTotal,
			ReserveDuration,
			ReleasesTotal,
			CASConflictsTotal,
			InvariantViolationsTotal,
			CycleResetsTotal,
			LotsExpiredTotal,
		)
	})
}
