package artifact

import "github.com/prometheus/client_golang/prometheus"

var (
	written = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartlic_artifacts_written_total",
			Help: "License artifacts written locally, by file name",
		},
		[]string{"file"},
	)
	writeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smartlic_artifact_write_failures_total",
			Help: "Failed local artifact writes",
		},
	)
	mirrorOK = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartlic_artifact_mirror_ok",
			Help: "Remote artifact mirror health (1=ok, 0=error)",
		},
	)
)

// MetricsCollectors returns artifact collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		written,
		writeFailures,
		mirrorOK,
	}
}
