package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker telemetry, labelled by guarded dependency ("stripe" here). State is
// exported as a gauge so dashboards can alert on a stuck-open circuit, and
// transitions as counters so flapping shows up in rate queries.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "breaker_state",
		Help: "Current breaker state: 0=closed,1=open,2=half-open",
	}, []string{"target"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_open_total",
		Help: "Number of times a breaker transitioned into open state",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "breaker_transition_total",
		Help: "Count of breaker state transitions",
	}, []string{"target", "from", "to"})
)

func init() {
	for _, c := range []prometheus.Collector{BreakerState, BreakerOpenedTotal, BreakerTransitions} {
		prometheus.MustRegister(c)
	}
}
