package vector

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"sibuild/pkg/container/types"
)

func TestFixed(t *testing.T) {
	vec := New(types.New(types.T_int32), 8)
	vec.PutInt32(0, 7)
	PutRun(vec, 1, 3, int32(9))
	PutSlice(vec, 4, []int32{1, 2})
	vec.PutNulls(6, 2)
	assert.Equal(t, int32(7), vec.Get(0))
	assert.Equal(t, int32(9), vec.Get(3))
	assert.Equal(t, int32(2), vec.Get(5))
	assert.True(t, vec.AnyNullsSet())
	assert.True(t, vec.IsNull(7))
	assert.Nil(t, vec.Get(6))

	vec.Reset()
	assert.False(t, vec.AnyNullsSet())
	assert.False(t, vec.IsNull(7))
	assert.Equal(t, int32(0), vec.Get(0))
	assert.Equal(t, 8, vec.Capacity())

	assert.Panics(t, func() { vec.PutInt64(0, 1) })
}

func TestDecimal(t *testing.T) {
	vec := New(types.NewDecimal(10, 2), 2)
	vec.PutDecimal(1, types.Decimal{V: 314, Scale: 2})
	assert.Equal(t, types.Decimal{V: 314, Scale: 2}, vec.Get(1))
}

func TestBytes(t *testing.T) {
	vec := New(types.New(types.T_varchar), 4)
	vec.PutAllBytes([]byte("helloworld"))
	vec.PutArray(0, 0, 5)
	vec.PutArray(1, 5, 5)
	vec.PutBytes(2, []byte("x"))
	vec.PutBytes(3, []byte{})
	assert.Equal(t, []byte("hello"), vec.Get(0))
	assert.Equal(t, []byte("world"), vec.Get(1))
	assert.Equal(t, []byte("x"), vec.Get(2))
	assert.Equal(t, []byte{}, vec.Get(3))

	vec.PutBytesRange(0, 2, []byte("ab"))
	assert.Equal(t, []byte("ab"), vec.Get(1))

	vec.Reset()
	assert.Equal(t, []byte{}, vec.Get(0))
}

func TestDictionary(t *testing.T) {
	vec := New(types.New(types.T_varchar), 3)
	assert.Nil(t, vec.DictionaryVector())
	vec.SetDictionary(NewDictionary([][]byte{[]byte("a"), []byte("b")}))
	keys := vec.DictionaryVector()
	keys.PutInt32(0, 1)
	keys.PutInt32(1, 0)
	vec.PutNull(2)
	assert.Equal(t, []byte("b"), vec.Get(0))
	assert.Equal(t, []byte("a"), vec.Get(1))
	assert.Nil(t, vec.Get(2))

	vec.Reset()
	assert.Nil(t, vec.Dictionary())

	assert.Panics(t, func() {
		New(types.New(types.T_int32), 1).SetDictionary(NewDictionary(nil))
	})
}

func TestLazyLoad(t *testing.T) {
	vec := New(types.New(types.T_int64), 2)
	calls := 0
	vec.SetLazyLoader(PageLoaderFunc(func(v *Vector) error {
		calls++
		v.PutInt64(0, 42)
		return nil
	}))
	assert.False(t, vec.IsLoaded())
	assert.Equal(t, int64(42), vec.Get(0))
	assert.Equal(t, int64(0), vec.Get(1))
	assert.Equal(t, 1, calls)

	vec.Reset()
	assert.True(t, vec.IsLoaded())
	assert.Equal(t, int64(0), vec.Get(0))

	failed := errors.New("io")
	vec.SetLazyLoader(PageLoaderFunc(func(v *Vector) error { return failed }))
	assert.ErrorIs(t, vec.Load(), failed)
	assert.False(t, vec.IsLoaded())
	assert.Panics(t, func() { vec.Get(0) })
}

func TestArrayHeader(t *testing.T) {
	vec := New(types.NewArray(types.New(types.T_int32)), 3)
	page := make([]byte, 3*8)
	counts := []uint32{2, 0, 3}
	offset := uint32(0)
	for i, c := range counts {
		binary.BigEndian.PutUint32(page[i*8:], c)
		binary.BigEndian.PutUint32(page[i*8+4:], offset)
		offset += c
	}
	assert.Nil(t, vec.SetArrayChildCounts(page, 3))
	assert.Equal(t, 2, vec.ChildCount(0))
	assert.Equal(t, 0, vec.ChildCount(1))
	assert.Equal(t, 3, vec.ChildCount(2))
	assert.Equal(t, 2, vec.ChildOffset(2))

	err := vec.SetArrayChildCounts(page[:20], 3)
	assert.ErrorIs(t, err, ErrMalformedHeader)
	err = vec.SetArrayChildCounts(page, 4)
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestStructHeader(t *testing.T) {
	vec := New(types.NewStruct(types.New(types.T_int32), types.New(types.T_int32)), 2)
	page := []byte{0, 2, 0, 1}
	assert.Nil(t, vec.SetStructChildCounts(page, 2))
	assert.Equal(t, 2, vec.ChildCount(0))
	assert.Equal(t, 1, vec.ChildCount(1))
	assert.Equal(t, 2, vec.ChildOffset(1))
	assert.ErrorIs(t, vec.SetStructChildCounts(page[:3], 2), ErrMalformedHeader)
}

func TestBatch(t *testing.T) {
	typs := []types.Type{
		types.New(types.T_int32),
		types.NewArray(types.New(types.T_varchar)),
	}
	bat := NewBatch(typs, 4)
	assert.Equal(t, 2, len(bat.Vecs))
	children := bat.Vecs[1].Children()
	assert.Equal(t, 1, len(children))
	assert.Equal(t, 4*ChildFanout, children[0].Capacity())

	children[0].PutBytes(0, []byte("x"))
	bat.Vecs[0].PutNull(1)
	bat.Rows = 2
	children[0].Reserve(64)
	assert.Equal(t, []byte("x"), children[0].Get(0))

	bat.Reset()
	assert.Equal(t, 0, bat.Rows)
	assert.False(t, bat.Vecs[0].AnyNullsSet())
	assert.Equal(t, []byte{}, children[0].Get(0))
}
