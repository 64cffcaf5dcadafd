package mergesort

import (
	"io"

	"sibuild/pkg/container/row"
	"sibuild/pkg/iface/handle"
)

var _ handle.RowStream = (*Merger)(nil)

// Merger is a k-way merge over sorted runs. With dedup set, a row equal to
// the previously emitted one is dropped.
type Merger struct {
	cmp     *Comparator
	dedup   bool
	readers []*row.FileReader
	heap    *heapSlice
	last    row.Row
	emitted int
	dropped int
}

func NewMerger(runs []Run, cmp *Comparator, dedup bool) (m *Merger, err error) {
	m = &Merger{
		cmp:     cmp,
		dedup:   dedup,
		readers: make([]*row.FileReader, len(runs)),
		heap:    newHeapSlice(len(runs), cmp),
	}
	defer func() {
		if err != nil {
			m.Close()
			m = nil
		}
	}()
	for i, run := range runs {
		if m.readers[i], err = row.OpenFile(run.Path); err != nil {
			return
		}
	}
	for i := range m.readers {
		if err = m.advance(i); err != nil {
			return
		}
	}
	return
}

// Next returns the next row in order, or io.EOF once every run is drained.
func (m *Merger) Next() (row.Row, error) {
	for m.heap.Len() != 0 {
		top := heapPop(m.heap)
		if err := m.advance(top.src); err != nil {
			return nil, err
		}
		if m.dedup && m.last != nil && m.cmp.Equal(m.last, top.data) {
			m.dropped++
			continue
		}
		m.last = top.data
		m.emitted++
		return top.data, nil
	}
	return nil, io.EOF
}

func (m *Merger) advance(src int) error {
	r := m.readers[src]
	if r == nil {
		return nil
	}
	data, err := r.Read()
	if err == io.EOF {
		m.readers[src] = nil
		return r.Close()
	} else if err != nil {
		return err
	}
	heapPush(m.heap, heapElem{data: data, src: src})
	return nil
}

func (m *Merger) Emitted() int { return m.emitted }
func (m *Merger) Dropped() int { return m.dropped }

// Close releases the run files still open. It does not remove them.
func (m *Merger) Close() (err error) {
	for i, r := range m.readers {
		if r == nil {
			continue
		}
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		m.readers[i] = nil
	}
	m.heap.s = m.heap.s[:0]
	return
}
