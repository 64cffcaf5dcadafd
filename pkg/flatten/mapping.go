package flatten

import (
	"errors"
	"fmt"

	"sibuild/pkg/catalog"
	"sibuild/pkg/container/types"
	"sibuild/pkg/container/vector"
	"sibuild/pkg/iface/data"
)

var (
	ErrNestedComplex    = errors.New("sibuild: nested complex column")
	ErrMultipleComplex  = errors.New("sibuild: more than one complex column")
	ErrMixedStruct      = errors.New("sibuild: struct fields of different types")
	ErrUnknownSurrogate = errors.New("sibuild: unknown dictionary surrogate")
)

// Mapping resolves every target column of an index row from a raw row. The
// position reference is appended as the last column.
type Mapping struct {
	table   string
	proj    *catalog.Projection
	dicts   []vector.Dictionary
	complex int
}

func NewMapping(table string, cols []*catalog.ColDef, dicts data.DictionaryService) (m *Mapping, err error) {
	m = &Mapping{
		table:   table,
		proj:    catalog.NewProjection(cols),
		dicts:   make([]vector.Dictionary, len(cols)),
		complex: -1,
	}
	for i, def := range cols {
		switch def.Kind {
		case catalog.KindDict:
			if m.dicts[i], err = dicts.Dictionary(table, def); err != nil {
				return nil, err
			}
		case catalog.KindComplex:
			if m.complex >= 0 {
				return nil, fmt.Errorf("%w: %s and %s", ErrMultipleComplex, cols[m.complex].Name, def.Name)
			}
			for _, child := range def.Type.Children {
				if child.IsComplex() {
					return nil, fmt.Errorf("%w: %s %s", ErrNestedComplex, def.Name, def.Type)
				}
				// all elements share one output column
				if !child.Eq(def.Type.Children[0]) {
					return nil, fmt.Errorf("%w: %s has %s and %s", ErrMixedStruct, def.Name, def.Type.Children[0], child)
				}
			}
			m.complex = i
		}
	}
	return
}

// Columns is the width of emitted rows.
func (m *Mapping) Columns() int { return len(m.proj.Cols) + 1 }

// TargetType is the logical type of output column i. Complex columns are
// emitted as their element type.
func (m *Mapping) TargetType(i int) types.Type {
	if i == len(m.proj.Cols) {
		return types.New(types.T_binary)
	}
	def := m.proj.Cols[i]
	if def.Kind == catalog.KindComplex {
		return def.Type.ElemType()
	}
	return def.Type
}
