// Package metrics exposes merge outcomes as Prometheus counters.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromRecorder counts merge outcomes on its own registry, so one process can
// run several imports without sharing the default registry.
type PromRecorder struct {
	registry *prometheus.Registry

	// records counts merged records by entity and outcome
	records *prometheus.CounterVec

	// usersCreated counts local users created for imported authors
	usersCreated prometheus.Counter

	// imports counts completed imports by result
	imports *prometheus.CounterVec
}

// NewPromRecorder creates a recorder with a fresh registry.
func NewPromRecorder() *PromRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PromRecorder{
		registry: reg,
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kindwall_merge_records_total",
			Help: "Snapshot records processed by entity and outcome",
		}, []string{"entity", "outcome"}),
		usersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "kindwall_merge_users_created_total",
			Help: "Local users created for imported authors",
		}),
		imports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kindwall_imports_total",
			Help: "Snapshot imports by result",
		}, []string{"result"}),
	}
}

// RecordOutcome counts one record outcome.
func (r *PromRecorder) RecordOutcome(entity, outcome string) {
	r.records.WithLabelValues(entity, outcome).Inc()
}

// RecordUserCreated counts one created user.
func (r *PromRecorder) RecordUserCreated() {
	r.usersCreated.Inc()
}

// RecordImport counts a finished import; failed is true when the snapshot
// was rejected as a whole.
func (r *PromRecorder) RecordImport(failed bool) {
	result := "ok"
	if failed {
		result = "rejected"
	}
	r.imports.WithLabelValues(result).Inc()
}

// Registry returns the registry the counters live on.
func (r *PromRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all counters in the text exposition format, for the
// node_exporter textfile collector.
func (r *PromRecorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
