package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives the pipeline's observability counters.
type Recorder interface {
	BlocksScanned(n int)
	BlocksPruned(n int)
	PagesScanned(n int)
	RowsScanned(n int)
	RowsDeleted(n int)
	RowsEmitted(n int)
	DeltaReads(n int)
	SegmentBuilt(ok bool)
}

type noop struct{}

var Noop Recorder = noop{}

func (noop) BlocksScanned(int) {}
func (noop) BlocksPruned(int)  {}
func (noop) PagesScanned(int)  {}
func (noop) RowsScanned(int)   {}
func (noop) RowsDeleted(int)   {}
func (noop) RowsEmitted(int)   {}
func (noop) DeltaReads(int)    {}
func (noop) SegmentBuilt(bool) {}

const namespace = "sibuild"

type Metrics struct {
	blocksScanned prometheus.Counter
	blocksPruned  prometheus.Counter
	pagesScanned  prometheus.Counter
	rowsScanned   prometheus.Counter
	rowsDeleted   prometheus.Counter
	rowsEmitted   prometheus.Counter
	deltaReads    prometheus.Counter
	segments      *prometheus.CounterVec
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates the counters and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		blocksScanned: newCounter("blocks_scanned_total", "Blocks scanned by rebuild tasks."),
		blocksPruned:  newCounter("blocks_pruned_total", "Blocklets skipped by pruning."),
		pagesScanned:  newCounter("pages_scanned_total", "Pages read by rebuild tasks."),
		rowsScanned:   newCounter("rows_scanned_total", "Rows read from pages."),
		rowsDeleted:   newCounter("rows_deleted_total", "Rows skipped as deleted."),
		rowsEmitted:   newCounter("rows_emitted_total", "Rows written to index segments."),
		deltaReads:    newCounter("delete_delta_reads_total", "Delete delta resolutions that read files."),
		segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Index segments built, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.blocksScanned, m.blocksPruned, m.pagesScanned, m.rowsScanned,
			m.rowsDeleted, m.rowsEmitted, m.deltaReads, m.segments)
	}
	return m
}

func (m *Metrics) BlocksScanned(n int) { m.blocksScanned.Add(float64(n)) }
func (m *Metrics) BlocksPruned(n int)  { m.blocksPruned.Add(float64(n)) }
func (m *Metrics) PagesScanned(n int)  { m.pagesScanned.Add(float64(n)) }
func (m *Metrics) RowsScanned(n int)   { m.rowsScanned.Add(float64(n)) }
func (m *Metrics) RowsDeleted(n int)   { m.rowsDeleted.Add(float64(n)) }
func (m *Metrics) RowsEmitted(n int)   { m.rowsEmitted.Add(float64(n)) }
func (m *Metrics) DeltaReads(n int)    { m.deltaReads.Add(float64(n)) }

func (m *Metrics) SegmentBuilt(ok bool) {
	result := "committed"
	if !ok {
		result = "rolled_back"
	}
	m.segments.WithLabelValues(result).Inc()
}
