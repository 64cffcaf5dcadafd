package mergesort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	queue "github.com/yireyun/go-queue"
	"golang.org/x/sync/errgroup"
	"sibuild/pkg/container/row"
	"sibuild/pkg/options"
)

var ErrRunQueueFull = errors.New("sibuild: sort run queue full")

const checkInterval = 1024

// Sorter buffers rows in memory and spills them as sorted runs into its own
// directory. Once MergeFanIn runs are pending, a group of them is merged in
// the background into one larger run.
type Sorter struct {
	cfg     options.SortCfg
	cmp     *Comparator
	dir     string
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	gctx    context.Context
	pending *queue.EsQueue
	buf     []row.Row
	seq     atomic.Uint64
	merges  atomic.Int32
	rows    int
	spilled int
	runs    []Run
	started bool
	closed  bool
}

func NewSorter(ctx context.Context, cfg *options.SortCfg, cmp *Comparator, dir string) (*Sorter, error) {
	if cfg.BufferRows <= 0 || cfg.MergeFanIn < 2 || cfg.MergeWorkers <= 0 {
		panic("not expected")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &Sorter{
		cfg:     *cfg,
		cmp:     cmp,
		dir:     dir,
		pending: queue.NewQueue(uint32(2*(cfg.MergeFanIn+cfg.MergeWorkers) + 8)),
		buf:     make([]row.Row, 0, cfg.BufferRows),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group, s.gctx = errgroup.WithContext(s.ctx)
	s.group.SetLimit(cfg.MergeWorkers)
	return s, nil
}

func (s *Sorter) Dir() string { return s.dir }

// Rows is the number of rows added so far.
func (s *Sorter) Rows() int { return s.rows }

// Spilled is the number of runs flushed from the buffer.
func (s *Sorter) Spilled() int { return s.spilled }

// Merges is the number of intermediate merges performed.
func (s *Sorter) Merges() int { return int(s.merges.Load()) }

func (s *Sorter) AddRow(r row.Row) error {
	if s.started || s.closed {
		panic("not expected")
	}
	s.buf = append(s.buf, r)
	s.rows++
	if len(s.buf) >= s.cfg.BufferRows {
		return s.flush()
	}
	return nil
}

// Start flushes the buffer and merges the runs until at most MergeFanIn of
// them remain. The surviving runs are returned by Runs.
func (s *Sorter) Start() error {
	if s.started || s.closed {
		panic("not expected")
	}
	s.started = true
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.wait(); err != nil {
		return err
	}
	runs := s.take(int(s.pending.Quantity()))
	for len(runs) > s.cfg.MergeFanIn {
		var err error
		if runs, err = s.mergeRound(runs); err != nil {
			return err
		}
	}
	s.runs = runs
	logrus.Debugf("sorter %s: %d rows, %d spilled, %d merges, %d runs", s.dir, s.rows, s.spilled, s.Merges(), len(runs))
	return nil
}

func (s *Sorter) Runs() []Run { return s.runs }

// Close stops background merges and removes every run file. It is safe to
// call more than once.
func (s *Sorter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	_ = s.group.Wait()
	s.buf = nil
	s.runs = nil
	return os.RemoveAll(s.dir)
}

func (s *Sorter) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	if s.gctx.Err() != nil {
		return s.wait()
	}
	sort.SliceStable(s.buf, func(i, j int) bool {
		return s.cmp.Less(s.buf[i], s.buf[j])
	})
	run, err := writeRun(s.nextPath(), s.buf)
	if err != nil {
		return err
	}
	s.spilled++
	for i := range s.buf {
		s.buf[i] = nil
	}
	s.buf = s.buf[:0]
	if err = s.put(run); err != nil {
		return err
	}
	s.schedule()
	return nil
}

func (s *Sorter) schedule() {
	for s.pending.Quantity() >= uint32(s.cfg.MergeFanIn) {
		runs := s.take(s.cfg.MergeFanIn)
		s.group.Go(func() error {
			run, err := s.mergeGroup(s.gctx, runs)
			if err != nil {
				return err
			}
			return s.put(run)
		})
	}
}

func (s *Sorter) mergeRound(runs []Run) ([]Run, error) {
	n := (len(runs) + s.cfg.MergeFanIn - 1) / s.cfg.MergeFanIn
	out := make([]Run, n)
	g, ctx := errgroup.WithContext(s.ctx)
	g.SetLimit(s.cfg.MergeWorkers)
	for i := 0; i < n; i++ {
		i := i
		start := i * s.cfg.MergeFanIn
		end := start + s.cfg.MergeFanIn
		if end > len(runs) {
			end = len(runs)
		}
		group := runs[start:end]
		if len(group) == 1 {
			out[i] = group[0]
			continue
		}
		g.Go(func() (err error) {
			out[i], err = s.mergeGroup(ctx, group)
			return
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeGroup merges runs into a new run and removes the inputs.
func (s *Sorter) mergeGroup(ctx context.Context, runs []Run) (out Run, err error) {
	m, err := NewMerger(runs, s.cmp, false)
	if err != nil {
		return
	}
	defer m.Close()
	if out, err = WriteRun(ctx, s.nextPath(), m); err != nil {
		return
	}
	if err = removeRuns(runs); err != nil {
		os.Remove(out.Path)
		out = Run{}
		return
	}
	s.merges.Add(1)
	return
}

func (s *Sorter) wait() error {
	if err := s.group.Wait(); err != nil {
		return err
	}
	return s.ctx.Err()
}

func (s *Sorter) put(run Run) error {
	if ok, _ := s.pending.Put(run); !ok {
		return ErrRunQueueFull
	}
	return nil
}

func (s *Sorter) take(n int) []Run {
	runs := make([]Run, 0, n)
	for len(runs) < n {
		v, ok, _ := s.pending.Get()
		if !ok {
			break
		}
		runs = append(runs, v.(Run))
	}
	return runs
}

func (s *Sorter) nextPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("run-%06d.lz4", s.seq.Add(1)))
}
