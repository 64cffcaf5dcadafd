package rebuild

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"sibuild/pkg/catalog"
	"sibuild/pkg/container/row"
	"sibuild/pkg/flatten"
	"sibuild/pkg/iface/data"
	"sibuild/pkg/iface/handle"
	"sibuild/pkg/mergesort"
	"sibuild/pkg/scan"
)

// TaskResult is what one partition task reports back. Run holds the task's
// sorted and deduplicated rows until the segment is merged.
type TaskResult struct {
	SegmentID uint64
	TaskNo    int
	Rows      uint64
	Run       mergesort.Run
	Err       error
}

func (res *TaskResult) String() string {
	if res.Err != nil {
		return fmt.Sprintf("TASK[seg=%d,task=%d,err=%v]", res.SegmentID, res.TaskNo, res.Err)
	}
	return fmt.Sprintf("TASK[seg=%d,task=%d,rows=%d]", res.SegmentID, res.TaskNo, res.Rows)
}

type task struct {
	r     *Rebuilder
	index *catalog.IndexEntry
	part  *data.Partition
	dir   string
	log   *logrus.Entry
}

func newTask(r *Rebuilder, index *catalog.IndexEntry, part *data.Partition, dir string) *task {
	return &task{
		r:     r,
		index: index,
		part:  part,
		dir:   dir,
		log: logrus.WithFields(logrus.Fields{
			"table":   index.GetTable().GetName(),
			"index":   index.GetName(),
			"segment": part.SegmentID,
			"task":    part.TaskNo,
		}),
	}
}

func (t *task) run(ctx context.Context) *TaskResult {
	res := &TaskResult{SegmentID: t.part.SegmentID, TaskNo: t.part.TaskNo}
	run, err := t.execute(ctx)
	if err != nil {
		res.Err = fmt.Errorf("task %d of segment %d: %w", t.part.TaskNo, t.part.SegmentID, err)
		t.log.Errorf("Task failed: %v", err)
		return res
	}
	res.Run = run
	res.Rows = uint64(run.Rows)
	t.log.Infof("Task done: %d rows from %d blocks", run.Rows, len(t.part.Blocks))
	return res
}

func (t *task) panicked(p interface{}) *TaskResult {
	t.log.Errorf("Task panicked: %v\n%s", p, debug.Stack())
	return &TaskResult{
		SegmentID: t.part.SegmentID,
		TaskNo:    t.part.TaskNo,
		Err:       fmt.Errorf("%w: task %d of segment %d: %v", ErrTaskPanic, t.part.TaskNo, t.part.SegmentID, p),
	}
}

func (t *task) sortDir() string {
	return filepath.Join(t.dir, fmt.Sprintf("task-%d", t.part.TaskNo))
}

func (t *task) output() string {
	return filepath.Join(t.dir, fmt.Sprintf("part-%d.lz4", t.part.TaskNo))
}

// execute runs scan, flatten, sort and merge in sequence and leaves the
// deduplicated rows in one run under the segment staging directory. The sort
// directory is removed on every exit path.
func (t *task) execute(ctx context.Context) (run mergesort.Run, err error) {
	table := t.index.GetTable().GetName()
	cols := t.index.ColDefs()
	mapping, err := flatten.NewMapping(table, cols, t.r.dicts)
	if err != nil {
		return
	}
	sorter, err := mergesort.NewSorter(ctx, t.r.opts.SortCfg, t.r.cmp, t.sortDir())
	if err != nil {
		return
	}
	defer func() {
		if cerr := sorter.Close(); cerr != nil {
			t.log.Warnf("Remove sort dir %s: %v", sorter.Dir(), cerr)
		}
	}()

	it := scan.NewPrunedRowIterator(scan.Options{
		Cache:     t.r.cache,
		Readers:   t.r.readers,
		Recorder:  t.r.recorder,
		BatchSize: t.r.opts.StorageCfg.BatchSize,
	}, cols, t.part.Blocks)
	defer it.Close()
	if err = flattenRows(ctx, it, mapping, sorter.AddRow); err != nil {
		return
	}
	if err = it.Close(); err != nil {
		return
	}
	st := it.Statistics()
	t.log.Debugf("Scanned: %s", st.String())

	if err = sorter.Start(); err != nil {
		return
	}
	merger, err := mergesort.NewMerger(sorter.Runs(), t.r.cmp, true)
	if err != nil {
		return
	}
	defer merger.Close()

	if run, err = mergesort.WriteRun(ctx, t.output(), merger); err != nil {
		return
	}
	if dropped := merger.Dropped(); dropped > 0 {
		t.log.Debugf("Dropped %d duplicate rows", dropped)
	}
	return
}

func flattenRows(ctx context.Context, it handle.RowIterator, m *flatten.Mapping, emit func(row.Row) error) error {
	for it.HasNext() {
		bat, err := it.Next(ctx)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		for _, raw := range bat.Rows {
			if err = m.Flatten(raw, emit); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRows(stream handle.RowStream, w data.IndexWriter) error {
	for {
		r, err := stream.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if err = w.AddRow(r); err != nil {
			return err
		}
	}
}
