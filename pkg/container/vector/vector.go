package vector

import (
	"encoding/binary"
	"errors"
	"fmt"

	"sibuild/pkg/container/nulls"
	"sibuild/pkg/container/types"
)

var (
	ErrMalformedHeader = errors.New("sibuild: malformed complex header")
	ErrNotLoaded       = errors.New("sibuild: vector not loaded")
)

const (
	arrayHeaderSize  = 8
	structHeaderSize = 2
)

// Dictionary resolves a surrogate key to its logical value.
type Dictionary interface {
	Value(key int32) []byte
	Size() int
}

// PageLoader materializes a lazily loaded vector on first read.
type PageLoader interface {
	Load(v *Vector) error
}

type PageLoaderFunc func(v *Vector) error

func (f PageLoaderFunc) Load(v *Vector) error { return f(v) }

type Vector struct {
	typ      types.Type
	capacity int
	col      column
	nsp      *nulls.Nulls
	anyNulls bool

	dict    Dictionary
	dictVec *Vector

	children []*Vector

	loader PageLoader
	loaded bool
}

func New(typ types.Type, batchSize int) *Vector {
	return &Vector{
		typ:      typ,
		capacity: batchSize,
		col:      newColumn(typ, batchSize),
		nsp:      nulls.New(),
		loaded:   true,
	}
}

func (v *Vector) Type() types.Type { return v.typ }
func (v *Vector) Capacity() int    { return v.capacity }

// Reserve grows the vector to hold at least n rows. Existing rows are kept.
func (v *Vector) Reserve(n int) {
	if n <= v.capacity {
		return
	}
	v.col.grow(n)
	if v.dictVec != nil {
		v.dictVec.Reserve(n)
	}
	v.capacity = n
}

func (v *Vector) PutBool(row int, val bool)       { putFixed(v, row, val) }
func (v *Vector) PutInt8(row int, val int8)       { putFixed(v, row, val) }
func (v *Vector) PutInt16(row int, val int16)     { putFixed(v, row, val) }
func (v *Vector) PutInt32(row int, val int32)     { putFixed(v, row, val) }
func (v *Vector) PutInt64(row int, val int64)     { putFixed(v, row, val) }
func (v *Vector) PutFloat32(row int, val float32) { putFixed(v, row, val) }
func (v *Vector) PutFloat64(row int, val float64) { putFixed(v, row, val) }
func (v *Vector) PutDecimal(row int, val types.Decimal) {
	putFixed(v, row, val)
}

// PutRun writes count copies of val starting at row.
func PutRun[T fixed](v *Vector, row, count int, val T) {
	data := fixedOf[T](v).data[row : row+count]
	for i := range data {
		data[i] = val
	}
}

// PutSlice copies vals into the vector starting at row.
func PutSlice[T fixed](v *Vector, row int, vals []T) {
	copy(fixedOf[T](v).data[row:row+len(vals)], vals)
}

func putFixed[T fixed](v *Vector, row int, val T) {
	fixedOf[T](v).data[row] = val
}

func fixedOf[T fixed](v *Vector) *fixedColumn[T] {
	col, ok := v.col.(*fixedColumn[T])
	if !ok {
		panic(fmt.Sprintf("not expected: %s vector", v.typ))
	}
	return col
}

func (v *Vector) bytes() *bytesColumn {
	col, ok := v.col.(*bytesColumn)
	if !ok {
		panic(fmt.Sprintf("not expected: %s vector", v.typ))
	}
	return col
}

// PutBytes stores an independent copy of val for row.
func (v *Vector) PutBytes(row int, val []byte) {
	v.bytes().putBytes(row, val)
}

// PutBytesRange stores the same value for count rows starting at row.
func (v *Vector) PutBytesRange(row, count int, val []byte) {
	col := v.bytes()
	for i := row; i < row+count; i++ {
		col.putBytes(i, val)
	}
}

// PutAllBytes replaces the shared area. Rows then address it with PutArray.
func (v *Vector) PutAllBytes(area []byte) {
	col := v.bytes()
	col.area = append(col.area[:0], area...)
}

func (v *Vector) PutArray(row, offset, length int) {
	col := v.bytes()
	if offset+length > len(col.area) {
		panic("not expected")
	}
	col.rows[row] = nil
	col.offsets[row] = int32(offset)
	col.lengths[row] = int32(length)
}

// PutValue writes a logical value, dispatching on the storage kind. Nil marks
// the row null.
func (v *Vector) PutValue(row int, val interface{}) {
	if val == nil {
		v.PutNull(row)
		return
	}
	v.col.set(row, val)
}

func (v *Vector) PutNull(row int) {
	nulls.Add(v.nsp, uint32(row))
	v.anyNulls = true
}

func (v *Vector) PutNulls(row, count int) {
	if count <= 0 {
		return
	}
	nulls.AddRange(v.nsp, uint32(row), uint32(row+count))
	v.anyNulls = true
}

func (v *Vector) IsNull(row int) bool {
	if !v.anyNulls {
		return false
	}
	return nulls.Contains(v.nsp, uint32(row))
}

func (v *Vector) AnyNullsSet() bool { return v.anyNulls }

func (v *Vector) Nulls() *nulls.Nulls { return v.nsp }

// SetDictionary attaches a dictionary. Values are then written as surrogate
// keys into DictionaryVector and resolved on Get.
func (v *Vector) SetDictionary(dict Dictionary) {
	if !v.typ.IsDictionaryEligible() {
		panic(fmt.Sprintf("not expected: dictionary on %s", v.typ))
	}
	v.dict = dict
	if dict != nil && v.dictVec == nil {
		v.dictVec = New(types.New(types.T_int32), v.capacity)
	}
}

func (v *Vector) Dictionary() Dictionary { return v.dict }

func (v *Vector) DictionaryVector() *Vector {
	if v.dict == nil {
		return nil
	}
	return v.dictVec
}

// SetLazyLoader defers materialization until the first read.
func (v *Vector) SetLazyLoader(loader PageLoader) {
	v.loader = loader
	v.loaded = loader == nil
}

func (v *Vector) IsLoaded() bool { return v.loaded }

func (v *Vector) Load() (err error) {
	if v.loaded {
		return
	}
	if err = v.loader.Load(v); err != nil {
		return
	}
	v.loaded = true
	return
}

func (v *Vector) mustLoad() {
	if err := v.Load(); err != nil {
		panic(err)
	}
}

// Get returns the logical value of row, nil when null. Complex vectors
// return nil; their values live in Children.
func (v *Vector) Get(row int) interface{} {
	v.mustLoad()
	if v.IsNull(row) {
		return nil
	}
	if v.dict != nil {
		return v.dict.Value(v.dictVec.Get(row).(int32))
	}
	return v.col.get(row)
}

func (v *Vector) complex() *complexColumn {
	col, ok := v.col.(*complexColumn)
	if !ok {
		panic(fmt.Sprintf("not expected: %s vector", v.typ))
	}
	return col
}

// SetArrayChildCounts decodes the per row header of an array page: a 4 byte
// element count followed by a 4 byte offset, both big-endian.
func (v *Vector) SetArrayChildCounts(page []byte, rows int) error {
	if rows > v.capacity || len(page) < rows*arrayHeaderSize {
		return fmt.Errorf("%w: %d bytes for %d array rows", ErrMalformedHeader, len(page), rows)
	}
	col := v.complex()
	for i := 0; i < rows; i++ {
		pos := i * arrayHeaderSize
		col.counts[i] = int32(binary.BigEndian.Uint32(page[pos:]))
		col.offsets[i] = int32(binary.BigEndian.Uint32(page[pos+4:]))
		if col.counts[i] < 0 || col.offsets[i] < 0 {
			return fmt.Errorf("%w: row %d", ErrMalformedHeader, i)
		}
	}
	return nil
}

// SetStructChildCounts decodes the 2 byte big-endian per row field count of a
// struct page. Offsets are cumulative.
func (v *Vector) SetStructChildCounts(page []byte, rows int) error {
	if rows > v.capacity || len(page) < rows*structHeaderSize {
		return fmt.Errorf("%w: %d bytes for %d struct rows", ErrMalformedHeader, len(page), rows)
	}
	col := v.complex()
	offset := int32(0)
	for i := 0; i < rows; i++ {
		col.counts[i] = int32(binary.BigEndian.Uint16(page[i*structHeaderSize:]))
		col.offsets[i] = offset
		offset += col.counts[i]
	}
	return nil
}

func (v *Vector) ChildCount(row int) int  { return int(v.complex().counts[row]) }
func (v *Vector) ChildOffset(row int) int { return int(v.complex().offsets[row]) }

func (v *Vector) SetChildren(children ...*Vector) {
	v.complex()
	v.children = children
}

func (v *Vector) Children() []*Vector { return v.children }

// Reset clears values, nulls, dictionary and loader state for the next
// window. Storage is reused, never reallocated.
func (v *Vector) Reset() {
	v.col.reset()
	nulls.Reset(v.nsp)
	v.anyNulls = false
	v.dict = nil
	if v.dictVec != nil {
		v.dictVec.Reset()
	}
	for _, child := range v.children {
		child.Reset()
	}
	v.loader = nil
	v.loaded = true
}

func (v *Vector) String() string {
	return fmt.Sprintf("Vector<%s>[cap=%d,nulls=%s]", v.typ, v.capacity, nulls.String(v.nsp))
}
