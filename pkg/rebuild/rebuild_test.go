package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sibuild/pkg/catalog"
	"sibuild/pkg/container/row"
	"sibuild/pkg/container/types"
	"sibuild/pkg/container/vector"
	"sibuild/pkg/dataio"
	"sibuild/pkg/flatten"
	"sibuild/pkg/iface/data"
	"sibuild/pkg/mergesort"
	"sibuild/pkg/options"
	"sibuild/pkg/updates"
)

var (
	errWrite     = errors.New("disk full")
	errMkdir     = errors.New("mkdir denied")
	errRemove    = errors.New("remove denied")
	errPartition = errors.New("no locality")
)

var blockCols = []string{"city", "id", "tags"}

type mockRecorder struct {
	emitted, committed, rolledBack atomic.Int64
}

func (r *mockRecorder) BlocksScanned(int) {}
func (r *mockRecorder) BlocksPruned(int)  {}
func (r *mockRecorder) PagesScanned(int)  {}
func (r *mockRecorder) RowsScanned(int)   {}
func (r *mockRecorder) RowsDeleted(int)   {}
func (r *mockRecorder) DeltaReads(int)    {}

func (r *mockRecorder) RowsEmitted(n int) { r.emitted.Add(int64(n)) }

func (r *mockRecorder) SegmentBuilt(ok bool) {
	if ok {
		r.committed.Add(1)
	} else {
		r.rolledBack.Add(1)
	}
}

// failingWriters fails the writer of one segment after two rows.
type failingWriters struct {
	dataio.LocalWriterFactory
	segment uint64
}

func (f failingWriters) NewWriter(ctx context.Context, index *catalog.IndexEntry, segmentID uint64, taskNo int) (data.IndexWriter, error) {
	w, err := f.LocalWriterFactory.NewWriter(ctx, index, segmentID, taskNo)
	if err != nil || segmentID != f.segment {
		return w, err
	}
	return &failingWriter{IndexWriter: w}, nil
}

type failingWriter struct {
	data.IndexWriter
}

func (w *failingWriter) AddRow(r row.Row) error {
	if w.Rows() == 2 {
		return errWrite
	}
	return w.IndexWriter.AddRow(r)
}

type failingPartitioner struct {
	BlockPartitioner
	segment uint64
}

func (p failingPartitioner) Partition(ctx context.Context, segment *catalog.SegmentEntry) ([]*data.Partition, error) {
	if segment.ID == p.segment {
		return nil, errPartition
	}
	return p.BlockPartitioner.Partition(ctx, segment)
}

type panickingDicts struct{}

func (panickingDicts) Dictionary(string, *catalog.ColDef) (vector.Dictionary, error) {
	panic("dictionary service down")
}

type testEnv struct {
	dir      string
	catalog  *catalog.Catalog
	table    *catalog.TableEntry
	index    *catalog.IndexEntry
	store    *dataio.MockStore
	recorder *mockRecorder
	opts     *options.Options
}

func newTestEnv(t *testing.T) *testEnv {
	dir := t.TempDir()
	schema := catalog.NewEmptySchema("t1")
	require.Nil(t, schema.AppendCol("city", types.New(types.T_varchar), catalog.KindDict))
	require.Nil(t, schema.AppendCol("id", types.New(types.T_int64), catalog.KindNoDict))
	require.Nil(t, schema.AppendCol("tags", types.NewArray(types.New(types.T_int32)), catalog.KindComplex))
	cat := catalog.NewCatalog(dir)
	table, err := cat.CreateTable(schema)
	require.Nil(t, err)
	index, err := table.CreateIndex("idx", "city", "tags", "id")
	require.Nil(t, err)
	return &testEnv{
		dir:      dir,
		catalog:  cat,
		table:    table,
		index:    index,
		store:    dataio.NewMockStore(),
		recorder: new(mockRecorder),
		opts: &options.Options{
			SortCfg: &options.SortCfg{
				BufferRows:   3,
				MergeFanIn:   2,
				MergeWorkers: 2,
				TempDir:      filepath.Join(dir, "tmp"),
			},
			SchedulerCfg: &options.SchedulerCfg{Workers: 4, TasksPerSegment: 2},
		},
	}
}

// mockRows repeats the tag of even ids so their two elements collapse.
func mockRows(from, n int) [][]interface{} {
	rows := make([][]interface{}, n)
	for i := range rows {
		id := from + i
		second := int32(id + 100)
		if id%2 == 0 {
			second = int32(id)
		}
		rows[i] = []interface{}{
			[]byte(fmt.Sprintf("c%d", id%3)),
			int64(id),
			[]interface{}{int32(id), second},
		}
	}
	return rows
}

func (env *testEnv) addBlock(seg *catalog.SegmentEntry, from, n int) *catalog.BlockEntry {
	blk := seg.CreateBlock(1, 1)
	env.store.AddBlock(blk, blockCols, mockRows(from, n), 4)
	return blk
}

// addSegments creates segment 0 with ids 0-9 where id 1 is deleted, and
// segment 1 with ids 10-13.
func (env *testEnv) addSegments(t *testing.T) (*catalog.SegmentEntry, *catalog.SegmentEntry) {
	seg0 := env.table.CreateSegment(catalog.StatusSuccess)
	first := env.addBlock(seg0, 0, 5)
	env.addBlock(seg0, 5, 5)
	rows := updates.NewDeletedRows()
	rows.Add(updates.PageKey{Blocklet: "0", Page: 0}, roaring.BitmapOf(1))
	path := filepath.Join(env.dir, updates.DeltaFileName(fmt.Sprintf("blk-%d", first.ID), 10))
	require.Nil(t, updates.WriteDeltaFile(path, rows))
	f, err := updates.DeltaFileFromPath(path)
	require.Nil(t, err)
	first.AddDeltaFile(f)

	seg1 := env.table.CreateSegment(catalog.StatusLoadPartialSuccess)
	env.addBlock(seg1, 10, 4)
	return seg0, seg1
}

func (env *testEnv) rebuilder(t *testing.T, deps Deps) *Rebuilder {
	deps.Readers = env.store
	deps.Dictionaries = env.store
	deps.Recorder = env.recorder
	r, err := NewRebuilder(env.opts, env.catalog, deps)
	require.Nil(t, err)
	t.Cleanup(r.Close)
	return r
}

func (env *testEnv) taskDirs(t *testing.T) []string {
	dirs, err := filepath.Glob(filepath.Join(env.opts.SortCfg.TempDir, "t1", "idx", "*", "*"))
	require.Nil(t, err)
	return dirs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRebuild(t *testing.T) {
	env := newTestEnv(t)
	seg0, seg1 := env.addSegments(t)
	env.table.CreateSegment(catalog.StatusMarkedForDelete)
	env.table.CreateSegment(catalog.StatusCompacted)

	r := env.rebuilder(t, Deps{})
	res, err := r.Rebuild(context.Background(), "t1", "idx")
	require.Nil(t, err)
	t.Log(res.String())
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, []uint64{seg0.ID, seg1.ID}, res.Committed)
	assert.Empty(t, res.Failed)
	// segment 0: evens 0,2,4,6,8 give one row, odds 3,5,7,9 give two
	assert.Equal(t, uint64(13), res.Rows[seg0.ID])
	assert.Equal(t, uint64(6), res.Rows[seg1.ID])
	assert.Len(t, res.Tasks, 3)
	assert.Equal(t, int64(19), env.recorder.emitted.Load())
	assert.Equal(t, int64(2), env.recorder.committed.Load())

	for _, seg := range []*catalog.SegmentEntry{seg0, seg1} {
		dir := env.index.SegmentPath(seg.ID)
		n, err := dataio.ReadSuccessMarker(dir)
		require.Nil(t, err)
		assert.Equal(t, res.Rows[seg.ID], n)
		built, ok := env.index.BuiltRows(seg.ID)
		assert.True(t, ok)
		assert.Equal(t, n, built)
	}

	cmp := &mergesort.Comparator{}
	rows, err := dataio.ReadIndexSegment(env.index.SegmentPath(seg0.ID))
	require.Nil(t, err)
	require.Len(t, rows, 13)
	for i, rr := range rows {
		require.Len(t, rr, 4)
		assert.NotEqual(t, int64(1), rr[2])
		if i > 0 {
			assert.True(t, cmp.Less(rows[i-1], rr), "row %d out of order", i)
		}
	}

	rows, err = dataio.ReadIndexSegment(env.index.SegmentPath(seg1.ID))
	require.Nil(t, err)
	require.Len(t, rows, 6)
	for i := 1; i < len(rows); i++ {
		assert.True(t, cmp.Less(rows[i-1], rows[i]), "row %d out of order", i)
	}
	assert.Equal(t, []byte("c0"), rows[0][0])
	assert.Equal(t, int32(12), rows[0][1])
	assert.Equal(t, int64(12), rows[0][2])
	assert.Equal(t, []byte(fmt.Sprintf("%d/%d/0/0/2", seg1.ID, seg1.Blocks()[0].ID)), rows[0][3])

	assert.Empty(t, env.taskDirs(t))

	res, err = r.Rebuild(context.Background(), "t1", "idx")
	require.Nil(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Empty(t, res.Committed)
}

func TestRebuildSegmentFails(t *testing.T) {
	env := newTestEnv(t)
	seg0, seg1 := env.addSegments(t)
	r := env.rebuilder(t, Deps{Writers: failingWriters{segment: seg1.ID}})

	res, err := r.Rebuild(context.Background(), "t1", "idx")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSegmentsFailed)
	assert.ErrorIs(t, err, errWrite)
	assert.Contains(t, err.Error(), fmt.Sprintf("segments [%d]", seg1.ID))
	assert.Contains(t, err.Error(), "idx")
	assert.Contains(t, err.Error(), "t1")

	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, []uint64{seg0.ID}, res.Committed)
	assert.Equal(t, []uint64{seg1.ID}, res.Failed)
	assert.Equal(t, uint64(13), res.Rows[seg0.ID])
	assert.True(t, env.index.IsBuilt(seg0.ID))
	assert.False(t, env.index.IsBuilt(seg1.ID))
	assert.True(t, exists(env.index.SegmentPath(seg0.ID)))
	assert.False(t, exists(env.index.SegmentPath(seg1.ID)))
	assert.Equal(t, int64(1), env.recorder.committed.Load())
	assert.Equal(t, int64(1), env.recorder.rolledBack.Load())
	assert.Empty(t, env.taskDirs(t))
	assert.Equal(t, 0, env.store.Readers())

	// a later rebuild only picks up the failed segment
	r2 := env.rebuilder(t, Deps{})
	res, err = r2.Rebuild(context.Background(), "t1", "idx")
	require.Nil(t, err)
	assert.Equal(t, []uint64{seg1.ID}, res.Committed)
	assert.Equal(t, uint64(6), res.Rows[seg1.ID])
}

func TestRebuildDedupAcrossTasks(t *testing.T) {
	env := newTestEnv(t)
	seg0, seg1 := env.addSegments(t)
	cmp := &mergesort.Comparator{Columns: []int{0, 1, 2, 3}, DedupColumns: 1}
	r := env.rebuilder(t, Deps{Comparator: cmp})

	res, err := r.Rebuild(context.Background(), "t1", "idx")
	require.Nil(t, err)
	// both blocks of segment 0 hold every city
	require.Len(t, res.Tasks, 3)
	assert.Equal(t, uint64(3), res.Rows[seg0.ID])
	assert.Equal(t, uint64(3), res.Rows[seg1.ID])
	assert.Equal(t, int64(6), env.recorder.emitted.Load())
	for _, seg := range []*catalog.SegmentEntry{seg0, seg1} {
		rows, err := dataio.ReadIndexSegment(env.index.SegmentPath(seg.ID))
		require.Nil(t, err)
		require.Len(t, rows, 3)
		for i, rr := range rows {
			assert.Equal(t, []byte(fmt.Sprintf("c%d", i)), rr[0])
		}
	}
	assert.Empty(t, env.taskDirs(t))
}

func TestRebuildTaskPanics(t *testing.T) {
	env := newTestEnv(t)
	seg0, seg1 := env.addSegments(t)
	r, err := NewRebuilder(env.opts, env.catalog, Deps{
		Readers:      env.store,
		Dictionaries: panickingDicts{},
		Recorder:     env.recorder,
	})
	require.Nil(t, err)
	defer r.Close()

	res, err := r.Rebuild(context.Background(), "t1", "idx")
	assert.ErrorIs(t, err, ErrSegmentsFailed)
	assert.ErrorIs(t, err, ErrTaskPanic)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Empty(t, res.Committed)
	assert.Equal(t, []uint64{seg0.ID, seg1.ID}, res.Failed)
	require.Len(t, res.Tasks, 3)
	for _, tr := range res.Tasks {
		assert.ErrorIs(t, tr.Err, ErrTaskPanic)
	}
	assert.False(t, exists(env.index.SegmentPath(seg0.ID)))
	assert.False(t, exists(env.index.SegmentPath(seg1.ID)))
	assert.Equal(t, int64(2), env.recorder.rolledBack.Load())
	assert.Empty(t, env.taskDirs(t))
}

func TestRebuildMixedStruct(t *testing.T) {
	env := newTestEnv(t)
	schema := catalog.NewEmptySchema("t2")
	require.Nil(t, schema.AppendCol("id", types.New(types.T_int64), catalog.KindNoDict))
	require.Nil(t, schema.AppendCol("pt", types.NewStruct(types.New(types.T_int32), types.New(types.T_varchar)), catalog.KindComplex))
	table, err := env.catalog.CreateTable(schema)
	require.Nil(t, err)
	index, err := table.CreateIndex("idx", "pt", "id")
	require.Nil(t, err)
	seg := table.CreateSegment(catalog.StatusSuccess)
	blk := seg.CreateBlock(1, 1)
	env.store.AddBlock(blk, []string{"id", "pt"}, [][]interface{}{
		{int64(1), []interface{}{int32(1), []byte("a")}},
	}, 4)

	r := env.rebuilder(t, Deps{})
	res, err := r.Rebuild(context.Background(), "t2", "idx")
	assert.ErrorIs(t, err, ErrSegmentsFailed)
	assert.ErrorIs(t, err, flatten.ErrMixedStruct)
	assert.Equal(t, []uint64{seg.ID}, res.Failed)
	assert.False(t, exists(index.SegmentPath(seg.ID)))
}

func TestSegmentBuildMissingResult(t *testing.T) {
	env := newTestEnv(t)
	b := &segmentBuild{
		segment: env.table.CreateSegment(catalog.StatusSuccess),
		tasks:   []*TaskResult{{TaskNo: 0}, nil},
	}
	assert.ErrorIs(t, b.failed(), ErrNoTaskResult)
	b.tasks[1] = &TaskResult{TaskNo: 1, Err: errWrite}
	assert.ErrorIs(t, b.failed(), errWrite)
	b.tasks[1].Err = nil
	assert.Nil(t, b.failed())
}

func TestRebuildCreateDirFails(t *testing.T) {
	env := newTestEnv(t)
	seg0, seg1 := env.addSegments(t)
	calls := 0
	stubs := gostub.Stub(&mkdirAll, func(path string, perm os.FileMode) error {
		calls++
		if calls == 2 {
			return errMkdir
		}
		return os.MkdirAll(path, perm)
	})
	defer stubs.Reset()

	r := env.rebuilder(t, Deps{})
	res, err := r.Rebuild(context.Background(), "t1", "idx")
	assert.ErrorIs(t, err, ErrCreateSegmentDir)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Empty(t, res.Committed)
	assert.False(t, exists(env.index.SegmentPath(seg0.ID)))
	assert.False(t, exists(env.index.SegmentPath(seg1.ID)))
	assert.Equal(t, 0, env.store.Opened())
}

func TestRebuildCleanupFails(t *testing.T) {
	env := newTestEnv(t)
	seg0, seg1 := env.addSegments(t)
	target := env.index.SegmentPath(seg1.ID)
	calls := 0
	stubs := gostub.Stub(&removeAll, func(path string) error {
		if path == target {
			// the first call clears a stale directory
			if calls++; calls > 1 {
				return errRemove
			}
		}
		return os.RemoveAll(path)
	})
	defer stubs.Reset()

	r := env.rebuilder(t, Deps{Writers: failingWriters{segment: seg1.ID}})
	res, err := r.Rebuild(context.Background(), "t1", "idx")
	assert.ErrorIs(t, err, ErrCleanupSegment)
	assert.NotErrorIs(t, err, ErrSegmentsFailed)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, []uint64{seg0.ID}, res.Committed)
	assert.True(t, exists(target))
}

func TestRebuildPartitionFails(t *testing.T) {
	env := newTestEnv(t)
	seg0, seg1 := env.addSegments(t)
	r := env.rebuilder(t, Deps{Partitioner: failingPartitioner{
		BlockPartitioner: BlockPartitioner{Tasks: 1},
		segment:          seg0.ID,
	}})
	res, err := r.Rebuild(context.Background(), "t1", "idx")
	assert.ErrorIs(t, err, ErrSegmentsFailed)
	assert.ErrorIs(t, err, errPartition)
	assert.Equal(t, []uint64{seg1.ID}, res.Committed)
	assert.Equal(t, []uint64{seg0.ID}, res.Failed)
	assert.False(t, exists(env.index.SegmentPath(seg0.ID)))
}

func TestRebuildNothing(t *testing.T) {
	env := newTestEnv(t)
	env.table.CreateSegment(catalog.StatusInProgress)
	env.table.CreateSegment(catalog.StatusMarkedForDelete)
	r := env.rebuilder(t, Deps{})
	res, err := r.Rebuild(context.Background(), "t1", "idx")
	require.Nil(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Empty(t, res.Committed)
	assert.False(t, exists(env.index.Path()))

	_, err = r.Rebuild(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = r.Rebuild(context.Background(), "t2", "idx")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRebuildEmptySegment(t *testing.T) {
	env := newTestEnv(t)
	seg := env.table.CreateSegment(catalog.StatusSuccess)
	r := env.rebuilder(t, Deps{})
	res, err := r.Rebuild(context.Background(), "t1", "idx")
	require.Nil(t, err)
	assert.Equal(t, []uint64{seg.ID}, res.Committed)
	assert.Equal(t, uint64(0), res.Rows[seg.ID])
	n, err := dataio.ReadSuccessMarker(env.index.SegmentPath(seg.ID))
	require.Nil(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestBlockPartitioner(t *testing.T) {
	env := newTestEnv(t)
	seg := env.table.CreateSegment(catalog.StatusSuccess)
	for i := 0; i < 5; i++ {
		env.addBlock(seg, i*2, 2)
	}
	parts, err := BlockPartitioner{Tasks: 2}.Partition(context.Background(), seg)
	require.Nil(t, err)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0].Blocks, 3)
	assert.Len(t, parts[1].Blocks, 2)
	assert.Equal(t, 1, parts[1].TaskNo)
	assert.Equal(t, seg.Blocks()[1].ID, parts[1].Blocks[0].Block.ID)

	parts, err = BlockPartitioner{Tasks: 8}.Partition(context.Background(), seg)
	require.Nil(t, err)
	assert.Len(t, parts, 5)

	parts, err = BlockPartitioner{}.Partition(context.Background(), env.table.CreateSegment(catalog.StatusSuccess))
	require.Nil(t, err)
	assert.Empty(t, parts)
}
