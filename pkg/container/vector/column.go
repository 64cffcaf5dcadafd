package vector

import "sibuild/pkg/container/types"

type fixed interface {
	bool | int8 | int16 | int32 | int64 | float32 | float64 | types.Decimal
}

// column is the storage kind backing a Vector. It is chosen once when the
// vector is created.
type column interface {
	get(row int) interface{}
	set(row int, v interface{})
	grow(n int)
	reset()
}

type fixedColumn[T fixed] struct {
	data []T
}

func (c *fixedColumn[T]) get(row int) interface{} { return c.data[row] }
func (c *fixedColumn[T]) set(row int, v interface{}) {
	c.data[row] = v.(T)
}

func (c *fixedColumn[T]) grow(n int) {
	data := make([]T, n)
	copy(data, c.data)
	c.data = data
}

func (c *fixedColumn[T]) reset() { clear(c.data) }

// bytesColumn holds variable length values either in one shared area
// addressed by offset and length, or as one slice per row.
type bytesColumn struct {
	area    []byte
	offsets []int32
	lengths []int32
	rows    [][]byte
}

func newBytesColumn(n int) *bytesColumn {
	return &bytesColumn{
		offsets: make([]int32, n),
		lengths: make([]int32, n),
		rows:    make([][]byte, n),
	}
}

func (c *bytesColumn) get(row int) interface{} {
	if c.rows[row] != nil {
		return c.rows[row]
	}
	if c.lengths[row] == 0 {
		return []byte{}
	}
	off := c.offsets[row]
	return c.area[off : off+c.lengths[row]]
}

func (c *bytesColumn) set(row int, v interface{}) {
	switch val := v.(type) {
	case []byte:
		c.putBytes(row, val)
	case string:
		c.putBytes(row, []byte(val))
	default:
		panic("not expected")
	}
}

func (c *bytesColumn) putBytes(row int, val []byte) {
	buf := make([]byte, len(val))
	copy(buf, val)
	c.rows[row] = buf
}

func (c *bytesColumn) grow(n int) {
	offsets := make([]int32, n)
	lengths := make([]int32, n)
	rows := make([][]byte, n)
	copy(offsets, c.offsets)
	copy(lengths, c.lengths)
	copy(rows, c.rows)
	c.offsets, c.lengths, c.rows = offsets, lengths, rows
}

func (c *bytesColumn) reset() {
	c.area = c.area[:0]
	clear(c.offsets)
	clear(c.lengths)
	clear(c.rows)
}

// complexColumn carries only the per-row child counts and offsets into the
// child vectors.
type complexColumn struct {
	counts  []int32
	offsets []int32
}

func (c *complexColumn) get(row int) interface{} { return nil }
func (c *complexColumn) set(row int, v interface{}) {
	panic("not expected")
}

func (c *complexColumn) grow(n int) {
	counts := make([]int32, n)
	offsets := make([]int32, n)
	copy(counts, c.counts)
	copy(offsets, c.offsets)
	c.counts, c.offsets = counts, offsets
}

func (c *complexColumn) reset() {
	clear(c.counts)
	clear(c.offsets)
}

type objectColumn struct {
	data []interface{}
}

func (c *objectColumn) get(row int) interface{}    { return c.data[row] }
func (c *objectColumn) set(row int, v interface{}) { c.data[row] = v }
func (c *objectColumn) grow(n int) {
	data := make([]interface{}, n)
	copy(data, c.data)
	c.data = data
}
func (c *objectColumn) reset() { clear(c.data) }

func newColumn(typ types.Type, n int) column {
	switch typ.Oid {
	case types.T_bool:
		return &fixedColumn[bool]{data: make([]bool, n)}
	case types.T_int8:
		return &fixedColumn[int8]{data: make([]int8, n)}
	case types.T_int16:
		return &fixedColumn[int16]{data: make([]int16, n)}
	case types.T_int32, types.T_date:
		return &fixedColumn[int32]{data: make([]int32, n)}
	case types.T_int64, types.T_timestamp:
		return &fixedColumn[int64]{data: make([]int64, n)}
	case types.T_float32:
		return &fixedColumn[float32]{data: make([]float32, n)}
	case types.T_float64:
		return &fixedColumn[float64]{data: make([]float64, n)}
	case types.T_decimal:
		return &fixedColumn[types.Decimal]{data: make([]types.Decimal, n)}
	case types.T_char, types.T_varchar, types.T_binary:
		return newBytesColumn(n)
	case types.T_array, types.T_struct:
		return &complexColumn{
			counts:  make([]int32, n),
			offsets: make([]int32, n),
		}
	}
	return &objectColumn{data: make([]interface{}, n)}
}
