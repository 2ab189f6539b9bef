package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry builds a registry from module collectors.
func Registry(groups ...[]prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, group := range groups {
		for _, collector := range group {
			registry.MustRegister(collector)
		}
	}

	return registry
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(path string, registry *prometheus.Registry) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
