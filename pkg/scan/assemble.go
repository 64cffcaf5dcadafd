package scan

import (
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"sibuild/pkg/catalog"
	"sibuild/pkg/container/types"
	"sibuild/pkg/container/vector"
	"sibuild/pkg/iface/data"
)

const (
	complexHeaderSize = 4
	elemLenSize       = 4
)

type assembler struct {
	proj    *catalog.Projection
	reader  data.PageReader
	present []bool
	prefix  string
}

func newAssembler(proj *catalog.Projection, reader data.PageReader, prefix string) *assembler {
	a := &assembler{
		proj:    proj,
		reader:  reader,
		present: make([]bool, len(proj.Cols)),
		prefix:  prefix,
	}
	for i := range proj.Cols {
		a.present[i] = reader.HasColumn(i)
	}
	return a
}

// assemble turns the rows of bat not in deleted into raw rows.
func (a *assembler) assemble(bat *vector.Batch, blocklet, page int, deleted *roaring.Bitmap) (rows []*data.RawRow, err error) {
	if bat.Rows == 0 {
		return
	}
	live := bat.Rows
	if deleted != nil {
		live -= int(deleted.Rank(uint32(bat.Rows - 1)))
	}
	if live <= 0 {
		return
	}
	for i, def := range a.proj.Cols {
		if def.Kind == catalog.KindMeasure {
			if err = bat.Vecs[i].Load(); err != nil {
				return
			}
		}
	}
	rows = make([]*data.RawRow, 0, live)
	for r := 0; r < bat.Rows; r++ {
		if deleted != nil && deleted.Contains(uint32(r)) {
			continue
		}
		raw := &data.RawRow{
			DictKey:     make([]byte, 4*a.proj.Count(catalog.KindDict)),
			NoDictKeys:  make([][]byte, a.proj.Count(catalog.KindNoDict)),
			ComplexKeys: make([][]byte, a.proj.Count(catalog.KindComplex)),
			Measures:    make([]interface{}, a.proj.Count(catalog.KindMeasure)),
			Position: data.Position{
				Blocklet: blocklet,
				Page:     page,
				Row:      r,
				Ref:      []byte(fmt.Sprintf("%s/%d/%d/%d", a.prefix, blocklet, page, r)),
			},
		}
		for i, def := range a.proj.Cols {
			vec, ord := bat.Vecs[i], a.proj.Ordinals[i]
			switch def.Kind {
			case catalog.KindDict:
				key := data.NullSurrogate
				if !vec.IsNull(r) && vec.DictionaryVector() != nil {
					key = vec.DictionaryVector().Get(r).(int32)
				}
				binary.BigEndian.PutUint32(raw.DictKey[ord*4:], uint32(key))
			case catalog.KindNoDict:
				if raw.NoDictKeys[ord], err = encodeNoDict(def.Type, vec.Get(r)); err != nil {
					return
				}
			case catalog.KindComplex:
				if a.present[i] {
					if raw.ComplexKeys[ord], err = encodeComplex(vec, r); err != nil {
						return
					}
				}
			case catalog.KindMeasure:
				raw.Measures[ord] = vec.Get(r)
			}
		}
		rows = append(rows, raw)
	}
	return
}

func encodeNoDict(typ types.Type, v interface{}) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return append([]byte{}, b...), nil
	}
	return types.EncodeValue(typ, v)
}

// encodeComplex writes [2B element type][2B count] followed by
// [4B length][payload] per element.
func encodeComplex(vec *vector.Vector, r int) (blob []byte, err error) {
	typ := vec.Type()
	elemType := typ.ElemType()
	count := vec.ChildCount(r)
	if count > 0xFFFF {
		err = fmt.Errorf("%w: %d elements", vector.ErrMalformedHeader, count)
		return
	}
	blob = make([]byte, complexHeaderSize, complexHeaderSize+count*(elemLenSize+elemType.FixedSize()))
	binary.BigEndian.PutUint16(blob, uint16(elemType.Oid))
	binary.BigEndian.PutUint16(blob[2:], uint16(count))
	children := vec.Children()
	var lenBuf [elemLenSize]byte
	for j := 0; j < count; j++ {
		var child *vector.Vector
		var pos int
		fieldType := elemType
		if typ.Oid == types.T_array {
			child, pos = children[0], vec.ChildOffset(r)+j
		} else {
			if j >= len(children) {
				err = fmt.Errorf("%w: struct row %d has %d fields", vector.ErrMalformedHeader, r, count)
				return
			}
			child, pos = children[j], r
			fieldType = typ.Children[j]
		}
		var payload []byte
		if payload, err = types.EncodeValue(fieldType, child.Get(pos)); err != nil {
			return
		}
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		blob = append(blob, lenBuf[:]...)
		blob = append(blob, payload...)
	}
	return
}
