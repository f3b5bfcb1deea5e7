package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestImportMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewImportMetrics(reg)

	m.FileOutcome("processed")
	m.FileOutcome("processed")
	m.FileOutcome("already_imported")
	m.Rows(10, 2, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.files.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues("already_imported")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.rows.WithLabelValues("inserted")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.files))
}

func TestImportMetrics_NilIsNoop(t *testing.T) {
	var m *ImportMetrics
	assert.NotPanics(t, func() {
		m.FileOutcome("processed")
		m.Rows(1, 1, 1)
	})
}
