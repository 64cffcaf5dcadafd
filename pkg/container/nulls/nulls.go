// Package nulls wraps a roaring bitmap holding the null rows of a vector.
package nulls

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

type Nulls struct {
	Np *roaring.Bitmap
}

func New() *Nulls {
	return &Nulls{Np: roaring.New()}
}

func Build(rows ...uint32) *Nulls {
	nsp := New()
	Add(nsp, rows...)
	return nsp
}

func Add(nsp *Nulls, rows ...uint32) {
	if len(rows) == 0 {
		return
	}
	if nsp.Np == nil {
		nsp.Np = roaring.New()
	}
	nsp.Np.AddMany(rows)
}

// AddRange marks [start, end) as null.
func AddRange(nsp *Nulls, start, end uint32) {
	if end <= start {
		return
	}
	if nsp.Np == nil {
		nsp.Np = roaring.New()
	}
	nsp.Np.AddRange(uint64(start), uint64(end))
}

func Contains(nsp *Nulls, row uint32) bool {
	if nsp == nil || nsp.Np == nil {
		return false
	}
	return nsp.Np.Contains(row)
}

// Any returns true if any bit in the Nulls is set.
func Any(nsp *Nulls) bool {
	if nsp == nil || nsp.Np == nil {
		return false
	}
	return !nsp.Np.IsEmpty()
}

func Length(nsp *Nulls) int {
	if nsp == nil || nsp.Np == nil {
		return 0
	}
	return int(nsp.Np.GetCardinality())
}

func Reset(nsp *Nulls) {
	if nsp.Np != nil {
		nsp.Np.Clear()
	}
}

func Or(nsp, m, r *Nulls) {
	if !Any(nsp) && !Any(m) {
		Reset(r)
		return
	}
	np := roaring.New()
	if Any(nsp) {
		np.Or(nsp.Np)
	}
	if Any(m) {
		np.Or(m.Np)
	}
	r.Np = np
}

func String(nsp *Nulls) string {
	if nsp == nil || nsp.Np == nil {
		return "[]"
	}
	return fmt.Sprintf("%v", nsp.Np.ToArray())
}
