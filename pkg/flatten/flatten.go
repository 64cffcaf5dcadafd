package flatten

import (
	"encoding/binary"
	"fmt"

	"sibuild/pkg/catalog"
	"sibuild/pkg/container/row"
	"sibuild/pkg/container/types"
	"sibuild/pkg/container/vector"
	"sibuild/pkg/iface/data"
)

// Flatten emits one row per element of the complex column, or a single row
// when the mapping has none. Elements are emitted in stored order and every
// other column is shared by all of them.
func (m *Mapping) Flatten(raw *data.RawRow, emit func(row.Row) error) (err error) {
	base := make(row.Row, m.Columns())
	var elems []interface{}
	for i, def := range m.proj.Cols {
		ord := m.proj.Ordinals[i]
		switch def.Kind {
		case catalog.KindDict:
			base[i], err = m.lookup(i, raw.DictKeyAt(ord))
		case catalog.KindNoDict:
			base[i], err = decodeNoDict(def.Type, raw.NoDictKeys[ord])
		case catalog.KindMeasure:
			base[i], err = decodeMeasure(def.Type, raw.Measures[ord])
		case catalog.KindComplex:
			if elems, err = decodeComplex(def.Type, raw.ComplexKeys[ord]); err == nil {
				base[i] = elems[0]
			}
		}
		if err != nil {
			return fmt.Errorf("column %s: %w", def.Name, err)
		}
	}
	base[len(base)-1] = raw.Position.Ref
	if err = emit(base); err != nil {
		return
	}
	for j := 1; j < len(elems); j++ {
		next := make(row.Row, len(base))
		copy(next, base)
		next[m.complex] = elems[j]
		if err = emit(next); err != nil {
			return
		}
	}
	return
}

func (m *Mapping) lookup(i int, key int32) (interface{}, error) {
	if key == data.NullSurrogate {
		return nil, nil
	}
	v := m.dicts[i].Value(key)
	if v == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSurrogate, key)
	}
	return v, nil
}

func decodeNoDict(typ types.Type, buf []byte) (v interface{}, err error) {
	if !typ.IsPrimitive() {
		return buf, nil
	}
	if v, err = types.DecodeValue(typ, buf); err != nil || v == nil {
		return
	}
	if typ.Oid == types.T_timestamp {
		v = types.MicrosToMillis(v.(int64))
	}
	return
}

func decodeMeasure(typ types.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if d, ok := v.(types.Decimal); ok {
		return d.Rebase(typ.Scale)
	}
	return v, nil
}

func emptyValue(typ types.Type) interface{} {
	if typ.IsPrimitive() {
		return nil
	}
	return []byte{}
}

// decodeComplex reads [2B element type][2B count] and count elements of
// [4B length][payload]. An absent blob or zero count gives one empty value.
func decodeComplex(typ types.Type, blob []byte) (elems []interface{}, err error) {
	elemType := typ.ElemType()
	if blob == nil {
		return []interface{}{emptyValue(elemType)}, nil
	}
	if len(blob) < 4 {
		return nil, fmt.Errorf("%w: %d byte complex value", vector.ErrMalformedHeader, len(blob))
	}
	count := int(binary.BigEndian.Uint16(blob[2:]))
	if count == 0 {
		return []interface{}{emptyValue(elemType)}, nil
	}
	elems = make([]interface{}, count)
	pos := 4
	for j := 0; j < count; j++ {
		fieldType := elemType
		if typ.Oid == types.T_struct {
			if j >= len(typ.Children) {
				return nil, fmt.Errorf("%w: %d struct fields", vector.ErrMalformedHeader, count)
			}
			fieldType = typ.Children[j]
		}
		if pos+4 > len(blob) {
			return nil, fmt.Errorf("%w: element %d length", vector.ErrMalformedHeader, j)
		}
		n := int(binary.BigEndian.Uint32(blob[pos:]))
		pos += 4
		if n > len(blob)-pos {
			return nil, fmt.Errorf("%w: element %d of %d bytes", vector.ErrMalformedHeader, j, n)
		}
		payload := blob[pos : pos+n]
		pos += n
		if len(payload) == 0 {
			elems[j] = emptyValue(fieldType)
			continue
		}
		var v interface{}
		if v, err = types.DecodeValue(fieldType, payload); err != nil {
			return nil, err
		}
		switch fieldType.Oid {
		case types.T_timestamp:
			v = types.MicrosToMillis(v.(int64))
		case types.T_date:
			v = v.(int32) + types.DateCutOff
		}
		elems[j] = v
	}
	return
}
