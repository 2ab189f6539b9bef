package workflow

import "github.com/prometheus/client_golang/prometheus"

var runs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "smartlic_workflow_runs_total",
		Help: "Workflow runs by workflow and outcome",
	},
	[]string{"workflow", "status"},
)

// MetricsCollectors returns workflow collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{runs}
}
