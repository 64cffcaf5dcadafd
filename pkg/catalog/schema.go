package catalog

import (
	"fmt"

	"sibuild/pkg/container/types"
)

type ColKind int8

const (
	// KindNoDict is a dimension stored as raw bytes.
	KindNoDict ColKind = iota
	KindDict
	KindComplex
	KindMeasure
)

func (k ColKind) String() string {
	switch k {
	case KindDict:
		return "DICT"
	case KindComplex:
		return "COMPLEX"
	case KindMeasure:
		return "MEASURE"
	}
	return "NODICT"
}

type ColDef struct {
	Idx  int
	Name string
	Type types.Type
	Kind ColKind
}

type Schema struct {
	Name    string
	ColDefs []*ColDef
	nameIdx map[string]int
}

func NewEmptySchema(name string) *Schema {
	return &Schema{
		Name:    name,
		nameIdx: make(map[string]int),
	}
}

func (s *Schema) AppendCol(name string, typ types.Type, kind ColKind) error {
	if _, ok := s.nameIdx[name]; ok {
		return fmt.Errorf("%w: column %s", ErrDuplicate, name)
	}
	switch {
	case kind == KindDict && !typ.IsDictionaryEligible():
		return fmt.Errorf("%w: dictionary column %s of %s", ErrSchema, name, typ)
	case kind == KindComplex && !typ.IsComplex():
		return fmt.Errorf("%w: complex column %s of %s", ErrSchema, name, typ)
	case kind != KindComplex && typ.IsComplex():
		return fmt.Errorf("%w: column %s of %s must be complex", ErrSchema, name, typ)
	}
	def := &ColDef{
		Idx:  len(s.ColDefs),
		Name: name,
		Type: typ,
		Kind: kind,
	}
	s.ColDefs = append(s.ColDefs, def)
	s.nameIdx[name] = def.Idx
	return nil
}

func (s *Schema) GetColIdx(name string) (int, bool) {
	idx, ok := s.nameIdx[name]
	return idx, ok
}

func (s *Schema) GetCol(name string) *ColDef {
	if idx, ok := s.nameIdx[name]; ok {
		return s.ColDefs[idx]
	}
	return nil
}

func (s *Schema) Types() []types.Type {
	ts := make([]types.Type, len(s.ColDefs))
	for i, def := range s.ColDefs {
		ts[i] = def.Type
	}
	return ts
}

func (s *Schema) String() string {
	return fmt.Sprintf("SCHEMA[name=%s,cols=%d]", s.Name, len(s.ColDefs))
}
