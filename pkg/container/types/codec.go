package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrUnsupportedType = errors.New("sibuild: unsupported type")

// EncodeValue writes v in the big-endian storage form used by no-dictionary
// columns and complex element payloads. A nil value encodes to an empty
// slice.
func EncodeValue(typ Type, v interface{}) (buf []byte, err error) {
	if v == nil {
		buf = []byte{}
		return
	}
	switch typ.Oid {
	case T_bool:
		buf = []byte{0}
		if v.(bool) {
			buf[0] = 1
		}
	case T_int8:
		buf = []byte{byte(v.(int8))}
	case T_int16:
		buf = make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(v.(int16)))
	case T_int32, T_date:
		buf = make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(v.(int32)))
	case T_int64, T_timestamp:
		buf = make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.(int64)))
	case T_float32:
		buf = make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(v.(float32)))
	case T_float64:
		buf = make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(v.(float64)))
	case T_decimal:
		buf = make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.(Decimal).V))
	case T_char, T_varchar, T_binary:
		switch val := v.(type) {
		case []byte:
			buf = val
		case string:
			buf = []byte(val)
		default:
			err = fmt.Errorf("%w: %T for %s", ErrUnsupportedType, v, typ)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	return
}

// DecodeValue is the inverse of EncodeValue. An empty buffer for a fixed
// width type decodes to nil. Timestamps are returned as stored.
func DecodeValue(typ Type, buf []byte) (v interface{}, err error) {
	if typ.IsVarlen() {
		v = buf
		return
	}
	if len(buf) == 0 {
		return
	}
	if size := typ.FixedSize(); size < 0 {
		err = fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
		return
	} else if len(buf) != size {
		err = fmt.Errorf("sibuild: %s value of %d bytes", typ, len(buf))
		return
	}
	switch typ.Oid {
	case T_bool:
		v = buf[0] != 0
	case T_int8:
		v = int8(buf[0])
	case T_int16:
		v = int16(binary.BigEndian.Uint16(buf))
	case T_int32, T_date:
		v = int32(binary.BigEndian.Uint32(buf))
	case T_int64, T_timestamp:
		v = int64(binary.BigEndian.Uint64(buf))
	case T_float32:
		v = math.Float32frombits(binary.BigEndian.Uint32(buf))
	case T_float64:
		v = math.Float64frombits(binary.BigEndian.Uint64(buf))
	case T_decimal:
		v = Decimal{V: int64(binary.BigEndian.Uint64(buf)), Scale: typ.Scale}
	}
	return
}

// CompareValue orders two logical values of the same type. Nil sorts first.
func CompareValue(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		} else if !av {
			return -1
		}
		return 1
	case int8:
		return compareOrdered(av, b.(int8))
	case int16:
		return compareOrdered(av, b.(int16))
	case int32:
		return compareOrdered(av, b.(int32))
	case int64:
		return compareOrdered(av, b.(int64))
	case float32:
		return compareOrdered(av, b.(float32))
	case float64:
		return compareOrdered(av, b.(float64))
	case Decimal:
		return CompareDecimal(av, b.(Decimal))
	case []byte:
		return bytes.Compare(av, b.([]byte))
	case string:
		return bytes.Compare([]byte(av), []byte(b.(string)))
	}
	panic(fmt.Sprintf("not expected: %T", a))
}

type ordered interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

func compareOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
