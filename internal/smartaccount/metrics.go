package smartaccount

import "github.com/prometheus/client_golang/prometheus"

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartlic_api_requests_total",
			Help: "Smart licensing API requests by endpoint and status code",
		},
		[]string{"endpoint", "code"},
	)
	pollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartlic_poll_attempts_total",
			Help: "Poll requests sent, by action",
		},
		[]string{"action"},
	)
	submissionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartlic_submission_failures_total",
			Help: "Submissions the API marked FAILED, by endpoint",
		},
		[]string{"endpoint"},
	)
)

// MetricsCollectors exposes API client collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		apiRequests,
		pollAttempts,
		submissionFailures,
	}
}
