package ingestion

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "repograph"

// Metrics are the pipeline's prometheus collectors
type Metrics struct {
	Runs            *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	StepFailures    *prometheus.CounterVec
	SkippedEntities *prometheus.CounterVec
	PluginFailures  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Analysis runs by final status.",
		}, []string{"status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of each pipeline step.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"step"}),
		StepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "step_failures_total",
			Help:      "Pipeline steps that failed or panicked.",
		}, []string{"step"}),
		SkippedEntities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pipeline",
			Name:      "skipped_entities_total",
			Help:      "Malformed entities skipped per step.",
		}, []string{"step"}),
		PluginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "plugins",
			Name:      "failures_total",
			Help:      "Plugin invocations that failed.",
		}, []string{"plugin"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Runs, m.StepDuration, m.StepFailures, m.SkippedEntities, m.PluginFailures} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// PluginFailed counts one failed plugin. Matches plugins.Options.OnFailure.
func (m *Metrics) PluginFailed(plugin string, _ error) {
	m.PluginFailures.WithLabelValues(plugin).Inc()
}

// WriteTextfile writes everything gathered by g in the text exposition
// format, for the node exporter textfile collector
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
