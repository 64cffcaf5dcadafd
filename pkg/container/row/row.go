package row

import (
	"fmt"
	"strings"

	"sibuild/pkg/container/types"
)

// Row is one flattened output row of logical values. The last column is
// the implicit position reference.
type Row []interface{}

func (r Row) Clone() Row {
	c := make(Row, len(r))
	for i, v := range r {
		if b, ok := v.([]byte); ok {
			v = append([]byte{}, b...)
		}
		c[i] = v
	}
	return c
}

func (r Row) String() string {
	var w strings.Builder
	w.WriteString("(")
	for i, v := range r {
		if i > 0 {
			w.WriteString(",")
		}
		switch val := v.(type) {
		case nil:
			w.WriteString("null")
		case []byte:
			w.WriteString(string(val))
		case types.Decimal:
			w.WriteString(val.String())
		default:
			fmt.Fprintf(&w, "%v", val)
		}
	}
	w.WriteString(")")
	return w.String()
}
