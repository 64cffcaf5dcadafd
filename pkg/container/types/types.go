package types

import (
	"fmt"
	"math"
)

type T uint8

const (
	T_any T = iota
	T_bool
	T_int8
	T_int16
	T_int32
	T_int64
	T_float32
	T_float64
	T_decimal
	T_date
	T_timestamp
	T_char
	T_varchar
	T_binary
	T_array
	T_struct
)

// DateCutOff is added to date values stored inside complex columns to get
// the logical day number.
const DateCutOff int32 = math.MaxInt32 >> 1

type Type struct {
	Oid       T
	Precision int32
	Scale     int32
	// Element type for arrays, field types for structs.
	Children []Type
}

func New(oid T) Type {
	return Type{Oid: oid}
}

func NewDecimal(precision, scale int32) Type {
	return Type{Oid: T_decimal, Precision: precision, Scale: scale}
}

func NewArray(elem Type) Type {
	return Type{Oid: T_array, Children: []Type{elem}}
}

func NewStruct(fields ...Type) Type {
	return Type{Oid: T_struct, Children: fields}
}

func (t Type) IsComplex() bool {
	return t.Oid == T_array || t.Oid == T_struct
}

func (t Type) IsVarlen() bool {
	return t.Oid == T_char || t.Oid == T_varchar || t.Oid == T_binary
}

// IsPrimitive reports whether values of t have a fixed width logical form.
func (t Type) IsPrimitive() bool {
	return !t.IsVarlen() && !t.IsComplex() && t.Oid != T_any
}

func (t Type) IsDictionaryEligible() bool {
	return t.IsVarlen()
}

// ElemType returns the type the complex column flattens into.
func (t Type) ElemType() Type {
	if !t.IsComplex() || len(t.Children) == 0 {
		panic("not expected")
	}
	return t.Children[0]
}

func (t Type) FixedSize() int {
	switch t.Oid {
	case T_bool, T_int8:
		return 1
	case T_int16:
		return 2
	case T_int32, T_float32, T_date:
		return 4
	case T_int64, T_float64, T_timestamp, T_decimal:
		return 8
	}
	return -1
}

func (t Type) Eq(o Type) bool {
	if t.Oid != o.Oid || t.Precision != o.Precision || t.Scale != o.Scale || len(t.Children) != len(o.Children) {
		return false
	}
	for i := range t.Children {
		if !t.Children[i].Eq(o.Children[i]) {
			return false
		}
	}
	return true
}

func (t Type) String() string {
	switch t.Oid {
	case T_bool:
		return "BOOL"
	case T_int8:
		return "TINYINT"
	case T_int16:
		return "SMALLINT"
	case T_int32:
		return "INT"
	case T_int64:
		return "BIGINT"
	case T_float32:
		return "FLOAT"
	case T_float64:
		return "DOUBLE"
	case T_decimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case T_date:
		return "DATE"
	case T_timestamp:
		return "TIMESTAMP"
	case T_char:
		return "CHAR"
	case T_varchar:
		return "VARCHAR"
	case T_binary:
		return "BINARY"
	case T_array:
		if len(t.Children) == 1 {
			return fmt.Sprintf("ARRAY<%s>", t.Children[0].String())
		}
		return "ARRAY"
	case T_struct:
		return "STRUCT"
	}
	return "ANY"
}

// MicrosToMillis scales a stored timestamp to its logical resolution.
func MicrosToMillis(v int64) int64 {
	return v / 1000
}
