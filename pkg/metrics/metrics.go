// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ImportMetrics counts import outcomes. A nil *ImportMetrics is a no-op.
type ImportMetrics struct {
	files *prometheus.CounterVec
	rows  *prometheus.CounterVec
}

// NewImportMetrics creates the import collectors and registers them with reg
// when reg is not nil.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	m := &ImportMetrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbhpm",
			Subsystem: "import",
			Name:      "files_total",
			Help:      "Uploaded files by import outcome.",
		}, []string{"outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cbhpm",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Table rows seen during import by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.files, m.rows)
	}
	return m
}

// FileOutcome counts one file.
func (m *ImportMetrics) FileOutcome(outcome string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(outcome).Inc()
}

// Rows adds row counts for one processed file.
func (m *ImportMetrics) Rows(inserted, duplicate, skipped int) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues("inserted").Add(float64(inserted))
	m.rows.WithLabelValues("duplicate").Add(float64(duplicate))
	m.rows.WithLabelValues("skipped").Add(float64(skipped))
}

// Files exposes the per-outcome file counter.
func (m *ImportMetrics) Files() *prometheus.CounterVec {
	return m.files
}
