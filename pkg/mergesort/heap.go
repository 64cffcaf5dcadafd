package mergesort

import "sibuild/pkg/container/row"

type heapElem struct {
	data row.Row
	src  int
}

type heapSlice struct {
	cmp *Comparator
	s   []heapElem
}

func newHeapSlice(n int, cmp *Comparator) *heapSlice {
	return &heapSlice{
		cmp: cmp,
		s:   make([]heapElem, 0, n),
	}
}

// Less breaks ties on the source index so rows of earlier runs come first.
func (x *heapSlice) Less(i, j int) bool {
	a, b := x.s[i], x.s[j]
	if r := x.cmp.Compare(a.data, b.data); r != 0 {
		return r < 0
	}
	return a.src < b.src
}
func (x *heapSlice) Swap(i, j int) { x.s[i], x.s[j] = x.s[j], x.s[i] }
func (x *heapSlice) Len() int      { return len(x.s) }

func heapPush(h *heapSlice, x heapElem) {
	h.s = append(h.s, x)
	up(h, len(h.s)-1)
}

func heapPop(h *heapSlice) heapElem {
	n := len(h.s) - 1
	h.s[0], h.s[n] = h.s[n], h.s[0]
	down(h, 0, n)
	res := h.s[n]
	h.s[n] = heapElem{}
	h.s = h.s[:n]
	return res
}

func up(h *heapSlice, j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		j = i
	}
}

func down(h *heapSlice, i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.Less(j2, j1) {
			j = j2
		}
		if !h.Less(j, i) {
			break
		}
		h.Swap(i, j)
		i = j
	}
}
