package mergesort

import (
	"sibuild/pkg/container/row"
	"sibuild/pkg/container/types"
)

// Comparator is the single total order shared by run sorting, the final
// merge and deduplication. Columns lists the key columns in priority order;
// an empty list orders by every column left to right. Rows are deduplicated
// on the first DedupColumns key columns, or the whole key when it is zero.
type Comparator struct {
	Columns      []int
	DedupColumns int
}

func (c *Comparator) Compare(a, b row.Row) int {
	if len(c.Columns) == 0 {
		return compareRange(a, b, -1)
	}
	return c.comparePrefix(a, b, len(c.Columns))
}

// Equal reports whether a and b collapse into one row.
func (c *Comparator) Equal(a, b row.Row) bool {
	if len(c.Columns) == 0 {
		n := c.DedupColumns
		if n <= 0 {
			n = -1
		}
		return compareRange(a, b, n) == 0
	}
	n := c.DedupColumns
	if n <= 0 || n > len(c.Columns) {
		n = len(c.Columns)
	}
	return c.comparePrefix(a, b, n) == 0
}

func (c *Comparator) Less(a, b row.Row) bool { return c.Compare(a, b) < 0 }

func (c *Comparator) comparePrefix(a, b row.Row, n int) int {
	for _, col := range c.Columns[:n] {
		if r := types.CompareValue(at(a, col), at(b, col)); r != 0 {
			return r
		}
	}
	return 0
}

// compareRange compares the first n columns, or all of them when n < 0.
func compareRange(a, b row.Row, n int) int {
	limit := len(a)
	if len(b) > limit {
		limit = len(b)
	}
	if n >= 0 && n < limit {
		limit = n
	}
	for i := 0; i < limit; i++ {
		if r := types.CompareValue(at(a, i), at(b, i)); r != 0 {
			return r
		}
	}
	return 0
}

func at(r row.Row, i int) interface{} {
	if i >= len(r) {
		return nil
	}
	return r[i]
}
