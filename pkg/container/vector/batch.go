package vector

import "sibuild/pkg/container/types"

// ChildFanout is the initial child vector capacity per parent row. Page
// readers Reserve more when a page needs it.
const ChildFanout = 4

type Batch struct {
	Vecs []*Vector
	Rows int
}

func NewBatch(typs []types.Type, batchSize int) *Batch {
	bat := &Batch{Vecs: make([]*Vector, len(typs))}
	for i, typ := range typs {
		bat.Vecs[i] = newVector(typ, batchSize)
	}
	return bat
}

func newVector(typ types.Type, size int) *Vector {
	vec := New(typ, size)
	if typ.IsComplex() {
		children := make([]*Vector, len(typ.Children))
		for i, child := range typ.Children {
			children[i] = newVector(child, size*ChildFanout)
		}
		vec.SetChildren(children...)
	}
	return vec
}

func (bat *Batch) Reset() {
	for _, vec := range bat.Vecs {
		vec.Reset()
	}
	bat.Rows = 0
}
