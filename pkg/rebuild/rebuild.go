package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"sibuild/pkg/catalog"
	"sibuild/pkg/dataio"
	"sibuild/pkg/iface/data"
	"sibuild/pkg/mergesort"
	"sibuild/pkg/options"
	"sibuild/pkg/stats"
	"sibuild/pkg/updates"
)

var (
	ErrCreateSegmentDir = errors.New("sibuild: create index segment dir")
	ErrCleanupSegment   = errors.New("sibuild: clean up failed index segment")
	ErrSegmentsFailed   = errors.New("sibuild: index segments failed")
	ErrTaskPanic        = errors.New("sibuild: task panicked")
	ErrNoTaskResult     = errors.New("sibuild: task reported no result")
)

var (
	mkdirAll  = os.MkdirAll
	removeAll = os.RemoveAll
)

type State int8

const (
	StatePending State = iota
	StateDirsCreated
	StateTasksRunning
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateDirsCreated:
		return "PerSegmentDirsCreated"
	case StateTasksRunning:
		return "TasksRunning"
	case StateCommitted:
		return "Committed"
	case StateRolledBack:
		return "RolledBack"
	}
	panic("not expected")
}

// Deps are the collaborators of a Rebuilder. Readers and Dictionaries are
// required, the rest fall back to local implementations.
type Deps struct {
	Readers      data.PageReaderFactory
	Dictionaries data.DictionaryService
	Cache        *updates.Cache
	Partitioner  data.Partitioner
	Writers      data.WriterFactory
	Publisher    data.StatusPublisher
	Recorder     stats.Recorder
	Comparator   *mergesort.Comparator
}

type Rebuilder struct {
	opts        *options.Options
	catalog     *catalog.Catalog
	readers     data.PageReaderFactory
	dicts       data.DictionaryService
	cache       *updates.Cache
	partitioner data.Partitioner
	writers     data.WriterFactory
	publisher   data.StatusPublisher
	recorder    stats.Recorder
	cmp         *mergesort.Comparator
	pool        *ants.Pool
}

func NewRebuilder(opts *options.Options, cat *catalog.Catalog, deps Deps) (*Rebuilder, error) {
	if deps.Readers == nil || deps.Dictionaries == nil {
		panic("not expected")
	}
	opts = opts.FillDefaults(cat.Dir())
	r := &Rebuilder{
		opts:        opts,
		catalog:     cat,
		readers:     deps.Readers,
		dicts:       deps.Dictionaries,
		cache:       deps.Cache,
		partitioner: deps.Partitioner,
		writers:     deps.Writers,
		publisher:   deps.Publisher,
		recorder:    deps.Recorder,
		cmp:         deps.Comparator,
	}
	if r.recorder == nil {
		r.recorder = stats.Noop
	}
	if r.cache == nil {
		r.cache = updates.NewCache(updates.FileDeltaReader{}, r.recorder)
	}
	if r.partitioner == nil {
		r.partitioner = BlockPartitioner{Tasks: opts.SchedulerCfg.TasksPerSegment}
	}
	if r.writers == nil {
		r.writers = dataio.LocalWriterFactory{}
	}
	if r.publisher == nil {
		r.publisher = cat
	}
	if r.cmp == nil {
		r.cmp = &mergesort.Comparator{}
	}
	pool, err := ants.NewPool(opts.SchedulerCfg.Workers)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

func (r *Rebuilder) Close() {
	r.pool.Release()
}

// Result describes one rebuild. Committed and Failed hold segment ids in
// ascending order.
type Result struct {
	Table     string
	Index     string
	State     State
	Committed []uint64
	Failed    []uint64
	Rows      map[uint64]uint64
	Tasks     []*TaskResult
}

func (res *Result) String() string {
	return fmt.Sprintf("REBUILD[%s.%s,%s,committed=%v,failed=%v]",
		res.Table, res.Index, res.State, res.Committed, res.Failed)
}

type segmentBuild struct {
	segment *catalog.SegmentEntry
	dir     string
	// staging holds the task outputs until they are merged
	staging string
	tasks   []*TaskResult
	rows    uint64
	err     error
}

func (b *segmentBuild) failed() error {
	if b.err != nil {
		return b.err
	}
	for i, res := range b.tasks {
		if res == nil {
			return fmt.Errorf("%w: task %d of segment %d", ErrNoTaskResult, i, b.segment.ID)
		}
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Rebuild builds index on every valid segment of table that lacks it.
// Segments whose tasks all succeed are committed even when others fail; a
// failed segment's output directory is removed. The returned error names the
// failed segments.
func (r *Rebuilder) Rebuild(ctx context.Context, table, index string) (*Result, error) {
	tableEntry, err := r.catalog.GetTableByName(table)
	if err != nil {
		return nil, err
	}
	indexEntry, err := tableEntry.GetIndex(index)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Table: table,
		Index: index,
		State: StatePending,
		Rows:  make(map[uint64]uint64),
	}
	segments := tableEntry.SegmentsToBuild(indexEntry)
	if len(segments) == 0 {
		res.State = StateCommitted
		logrus.Infof("%s: no segment to build", indexEntry.String())
		return res, nil
	}

	builds, err := r.createDirs(indexEntry, segments)
	if err != nil {
		res.State = StateRolledBack
		return res, err
	}
	res.State = StateDirsCreated
	logrus.Debugf("%s: %s for %d segments", indexEntry.String(), res.State, len(builds))

	res.State = StateTasksRunning
	r.runTasks(ctx, indexEntry, builds)

	var firstErr error
	for _, b := range builds {
		for _, t := range b.tasks {
			if t != nil {
				res.Tasks = append(res.Tasks, t)
			}
		}
		if err := b.failed(); err == nil {
			if err = r.finish(ctx, indexEntry, b); err == nil {
				err = r.commit(ctx, indexEntry, b)
			}
			r.removeStaging(b)
			if err == nil {
				res.Committed = append(res.Committed, b.segment.ID)
				res.Rows[b.segment.ID] = b.rows
				r.recorder.SegmentBuilt(true)
				continue
			}
			b.err = err
		} else {
			r.removeStaging(b)
		}
		r.recorder.SegmentBuilt(false)
		res.Failed = append(res.Failed, b.segment.ID)
		if firstErr == nil {
			firstErr = b.failed()
		}
		logrus.Errorf("%s: segment %d failed: %v", indexEntry.String(), b.segment.ID, b.failed())
		if err := removeAll(b.dir); err != nil {
			res.State = StateRolledBack
			return res, fmt.Errorf("%w: %s segment %d: %v", ErrCleanupSegment, indexEntry.String(), b.segment.ID, err)
		}
	}
	if len(res.Failed) > 0 {
		res.State = StateRolledBack
		return res, fmt.Errorf("%w: index %s of table %s, segments %v: %w",
			ErrSegmentsFailed, index, table, res.Failed, firstErr)
	}
	res.State = StateCommitted
	logrus.Infof("%s: built %d segments", indexEntry.String(), len(res.Committed))
	return res, nil
}

// createDirs prepares an empty output directory per segment. On failure the
// directories created so far are removed.
func (r *Rebuilder) createDirs(index *catalog.IndexEntry, segments []*catalog.SegmentEntry) ([]*segmentBuild, error) {
	builds := make([]*segmentBuild, 0, len(segments))
	for _, segment := range segments {
		dir := index.SegmentPath(segment.ID)
		err := removeAll(dir)
		if err == nil {
			err = mkdirAll(dir, 0755)
		}
		if err != nil {
			for _, b := range builds {
				if rerr := removeAll(b.dir); rerr != nil {
					logrus.Warnf("Remove %s: %v", b.dir, rerr)
				}
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrCreateSegmentDir, dir, err)
		}
		builds = append(builds, &segmentBuild{
			segment: segment,
			dir:     dir,
			staging: filepath.Join(
				r.opts.SortCfg.TempDir,
				index.GetTable().GetName(),
				index.GetName(),
				strconv.FormatUint(segment.ID, 10),
				uuid.NewString()),
		})
	}
	return builds, nil
}

// runTasks fans the partitions of every segment out on the pool and waits for
// all of them. A panicking task is reported as failed.
func (r *Rebuilder) runTasks(ctx context.Context, index *catalog.IndexEntry, builds []*segmentBuild) {
	var wg sync.WaitGroup
	for _, b := range builds {
		parts, err := r.partitioner.Partition(ctx, b.segment)
		if err != nil {
			b.err = fmt.Errorf("partition segment %d: %w", b.segment.ID, err)
			continue
		}
		sort.Slice(parts, func(i, j int) bool { return parts[i].TaskNo < parts[j].TaskNo })
		b.tasks = make([]*TaskResult, len(parts))
		for i, part := range parts {
			i, b, t := i, b, newTask(r, index, part, b.staging)
			wg.Add(1)
			if err = r.pool.Submit(func() {
				defer wg.Done()
				defer func() {
					if p := recover(); p != nil {
						b.tasks[i] = t.panicked(p)
					}
				}()
				b.tasks[i] = t.run(ctx)
			}); err != nil {
				wg.Done()
				b.tasks[i] = &TaskResult{SegmentID: part.SegmentID, TaskNo: part.TaskNo, Err: err}
			}
		}
	}
	wg.Wait()
}

// finish merges the task runs of a segment into one index part. Rows equal
// under the comparator but produced by different tasks collapse here, so the
// part is ordered and unique however the segment was partitioned.
func (r *Rebuilder) finish(ctx context.Context, index *catalog.IndexEntry, b *segmentBuild) (err error) {
	runs := make([]mergesort.Run, 0, len(b.tasks))
	for _, res := range b.tasks {
		if res.Run.Path != "" {
			runs = append(runs, res.Run)
		}
	}
	if len(runs) == 0 {
		return
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("merge segment %d: %w", b.segment.ID, err)
		}
	}()
	merger, err := mergesort.NewMerger(runs, r.cmp, true)
	if err != nil {
		return
	}
	defer merger.Close()
	writer, err := r.writers.NewWriter(ctx, index, b.segment.ID, 0)
	if err != nil {
		return
	}
	defer writer.Close()
	if err = writeRows(merger, writer); err != nil {
		return
	}
	if err = writer.Finish(); err != nil {
		return
	}
	b.rows = writer.Rows()
	r.recorder.RowsEmitted(int(b.rows))
	logrus.Debugf("%s: segment %d merged %d runs into %d rows, %d duplicates",
		index.String(), b.segment.ID, len(runs), b.rows, merger.Dropped())
	return
}

func (r *Rebuilder) removeStaging(b *segmentBuild) {
	if err := os.RemoveAll(b.staging); err != nil {
		logrus.Warnf("Remove %s: %v", b.staging, err)
	}
}

func (r *Rebuilder) commit(ctx context.Context, index *catalog.IndexEntry, b *segmentBuild) error {
	if err := dataio.WriteSuccessMarker(b.dir, b.rows); err != nil {
		return err
	}
	return r.publisher.PublishIndexSegment(ctx, index.GetTable().GetName(), index.GetName(), b.segment.ID, b.rows)
}
