package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RowsScanned(10)
	m.RowsScanned(5)
	m.DeltaReads(1)
	m.SegmentBuilt(true)
	m.SegmentBuilt(false)
	m.SegmentBuilt(false)

	assert.Equal(t, float64(15), testutil.ToFloat64(m.rowsScanned))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.deltaReads))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.segments.WithLabelValues("rolled_back")))

	assert.Panics(t, func() { NewMetrics(reg) })

	Noop.RowsEmitted(1)
}
