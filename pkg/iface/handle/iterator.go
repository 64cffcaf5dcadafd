package handle

import (
	"context"
	"io"

	"sibuild/pkg/container/row"
	"sibuild/pkg/iface/data"
)

type RowIterator interface {
	io.Closer
	HasNext() bool
	Next(ctx context.Context) (*data.RowBatch, error)
}

// RowStream yields rows in order and io.EOF at the end.
type RowStream interface {
	Next() (row.Row, error)
}
