// Package metrics holds the Prometheus collectors of the negotiation service.
//
// Exposed series:
//   - negotiation_transitions_total{action}  accepted state transitions (CREATE|COUNTER|ACCEPT|REJECT|ORDER)
//   - negotiation_lock_ops_total{op,result}  lease operations by outcome
//   - negotiation_errors_total{op,kind}      typed failures returned to callers
//   - negotiation_locks_swept_total          expired leases cleared by the sweeper
//
// Collectors are registered in init() and served at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negotiation_transitions_total",
			Help: "Accepted negotiation state transitions",
		},
		[]string{"action"},
	)

	mtxLockOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negotiation_lock_ops_total",
			Help: "Lease operations split by op and result",
		},
		[]string{"op", "result"},
	)

	mtxErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negotiation_errors_total",
			Help: "Failed negotiation operations split by error kind",
		},
		[]string{"op", "kind"},
	)

	mtxSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "negotiation_locks_swept_total",
			Help: "Expired leases cleared by the background sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxTransitions, mtxLockOps, mtxErrors, mtxSwept)
}

// ObserveTransition counts one accepted transition.
func ObserveTransition(action string) {
	mtxTransitions.WithLabelValues(action).Inc()
}

// ObserveLock counts one lease operation; result is "ok" or an error kind.
func ObserveLock(op, result string) {
	if result == "" {
		result = "INTERNAL"
	}
	mtxLockOps.WithLabelValues(op, result).Inc()
}

// ObserveError counts one failed operation.
func ObserveError(op, kind string) {
	mtxErrors.WithLabelValues(op, kind).Inc()
}

// ObserveSweep adds cleared leases.
func ObserveSweep(n int) {
	mtxSwept.Add(float64(n))
}
