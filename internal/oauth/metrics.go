package oauth

import "github.com/prometheus/client_golang/prometheus"

var (
	tokenSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartlic_oauth_token_success_total",
			Help: "Successful client-credentials token exchanges",
		},
		[]string{"provider"},
	)
	tokenFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartlic_oauth_token_failure_total",
			Help: "Failed client-credentials token exchanges",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the shared OAuth module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		tokenSuccess,
		tokenFailure,
	}
}
