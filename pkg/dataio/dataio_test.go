package dataio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sibuild/pkg/catalog"
	"sibuild/pkg/container/row"
	"sibuild/pkg/container/types"
	"sibuild/pkg/container/vector"
)

func mockTable(t *testing.T, dir string) *catalog.TableEntry {
	schema := catalog.NewEmptySchema("t1")
	require.Nil(t, schema.AppendCol("city", types.New(types.T_varchar), catalog.KindDict))
	require.Nil(t, schema.AppendCol("name", types.New(types.T_varchar), catalog.KindNoDict))
	require.Nil(t, schema.AppendCol("tags", types.NewArray(types.New(types.T_int32)), catalog.KindComplex))
	require.Nil(t, schema.AppendCol("score", types.New(types.T_float64), catalog.KindMeasure))
	require.Nil(t, schema.AppendCol("attrs", types.NewStruct(types.New(types.T_int32), types.New(types.T_int32)), catalog.KindComplex))
	table, err := catalog.NewCatalog(dir).CreateTable(schema)
	require.Nil(t, err)
	return table
}

func TestMockStore(t *testing.T) {
	table := mockTable(t, t.TempDir())
	blk := table.CreateSegment(catalog.StatusSuccess).CreateBlock(1, 2)
	store := NewMockStore()
	store.AddBlock(blk, []string{"city", "name", "tags", "score"}, [][]interface{}{
		{[]byte("sh"), []byte("a"), []interface{}{int32(1), int32(2)}, float64(1)},
		{[]byte("bj"), nil, []interface{}{}, nil},
		{[]byte("sh"), []byte("ccc"), []interface{}{int32(3)}, float64(3)},
	}, 2)

	cols := table.GetSchema().ColDefs
	r, err := store.Open(context.Background(), blk, cols)
	require.Nil(t, err)
	assert.Equal(t, 1, store.Readers())
	pages, err := r.Pages(0)
	assert.Nil(t, err)
	assert.Equal(t, 1, pages)
	_, err = r.Pages(2)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.True(t, r.HasColumn(2))
	assert.False(t, r.HasColumn(4))

	bat := vector.NewBatch(table.GetSchema().Types(), 4)
	require.Nil(t, r.ReadPage(context.Background(), 0, 0, bat))
	assert.Equal(t, 2, bat.Rows)

	city := bat.Vecs[0]
	assert.Equal(t, []byte("bj"), city.Get(1))
	assert.Equal(t, int32(0), city.DictionaryVector().Get(0))

	assert.Nil(t, bat.Vecs[1].Get(1))
	assert.Equal(t, []byte("a"), bat.Vecs[1].Get(0))

	tags := bat.Vecs[2]
	assert.Equal(t, 2, tags.ChildCount(0))
	assert.Equal(t, 0, tags.ChildCount(1))
	assert.Equal(t, int32(2), tags.Children()[0].Get(tags.ChildOffset(0)+1))

	score := bat.Vecs[3]
	assert.False(t, score.IsLoaded())
	assert.Equal(t, float64(1), score.Get(0))
	assert.True(t, score.IsLoaded())
	assert.True(t, score.IsNull(1))

	bat.Reset()
	require.Nil(t, r.ReadPage(context.Background(), 1, 0, bat))
	assert.Equal(t, 1, bat.Rows)
	assert.Equal(t, []byte("ccc"), bat.Vecs[1].Get(0))

	assert.Nil(t, r.Close())
	assert.Nil(t, r.Close())
	assert.Equal(t, 0, store.Readers())

	dict, err := store.Dictionary("t1", cols[0])
	assert.Nil(t, err)
	assert.Equal(t, 2, dict.Size())

	injected := errors.New("bad page")
	store.InjectError(blk.ID, injected)
	r, err = store.Open(context.Background(), blk, cols)
	require.Nil(t, err)
	assert.ErrorIs(t, r.ReadPage(context.Background(), 0, 0, bat), injected)
	r.Close()

	_, err = store.Open(context.Background(), table.CreateSegment(catalog.StatusSuccess).CreateBlock(1, 1), cols)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestStructPage(t *testing.T) {
	table := mockTable(t, t.TempDir())
	blk := table.CreateSegment(catalog.StatusSuccess).CreateBlock(1, 1)
	store := NewMockStore()
	store.AddBlock(blk, []string{"attrs"}, [][]interface{}{
		{[]interface{}{int32(1), int32(2)}},
		{[]interface{}{int32(3)}},
	}, 10)
	def := table.GetSchema().GetCol("attrs")
	r, err := store.Open(context.Background(), blk, []*catalog.ColDef{def})
	require.Nil(t, err)
	defer r.Close()
	bat := vector.NewBatch([]types.Type{def.Type}, 2)
	require.Nil(t, r.ReadPage(context.Background(), 0, 0, bat))
	vec := bat.Vecs[0]
	assert.Equal(t, 2, vec.ChildCount(0))
	assert.Equal(t, 1, vec.ChildCount(1))
	assert.Equal(t, int32(2), vec.Children()[1].Get(0))
	assert.Equal(t, int32(3), vec.Children()[0].Get(1))
}

func TestLocalWriter(t *testing.T) {
	table := mockTable(t, t.TempDir())
	idx, err := table.CreateIndex("i1", "name")
	require.Nil(t, err)
	dir := idx.SegmentPath(0)
	require.Nil(t, os.MkdirAll(dir, 0755))

	ctx := context.Background()
	w, err := LocalWriterFactory{}.NewWriter(ctx, idx, 0, 0)
	require.Nil(t, err)
	require.Nil(t, w.AddRow(row.Row{[]byte("a"), []byte("ref-0")}))
	require.Nil(t, w.AddRow(row.Row{[]byte("b"), []byte("ref-1")}))
	assert.Equal(t, uint64(2), w.Rows())
	require.Nil(t, w.Finish())
	assert.Nil(t, w.Close())

	aborted, err := LocalWriterFactory{}.NewWriter(ctx, idx, 0, 1)
	require.Nil(t, err)
	require.Nil(t, aborted.AddRow(row.Row{[]byte("c")}))
	assert.Nil(t, aborted.Close())

	rows, err := ReadIndexSegment(dir)
	require.Nil(t, err)
	assert.Equal(t, []row.Row{{[]byte("a"), []byte("ref-0")}, {[]byte("b"), []byte("ref-1")}}, rows)

	require.Nil(t, WriteSuccessMarker(dir, 2))
	n, err := ReadSuccessMarker(dir)
	assert.Nil(t, err)
	assert.Equal(t, uint64(2), n)
}
