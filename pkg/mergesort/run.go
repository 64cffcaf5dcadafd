package mergesort

import (
	"context"
	"fmt"
	"io"
	"os"

	"sibuild/pkg/container/row"
	"sibuild/pkg/iface/handle"
)

// Run is a sorted, immutable row file.
type Run struct {
	Path string
	Rows int
}

func (r Run) String() string { return fmt.Sprintf("Run<%s:%d>", r.Path, r.Rows) }

func writeRun(path string, rows []row.Row) (run Run, err error) {
	w, err := row.CreateFile(path)
	if err != nil {
		return
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	for _, r := range rows {
		if err = w.Write(r); err != nil {
			return
		}
	}
	run = Run{Path: path, Rows: w.Rows()}
	return
}

// WriteRun drains stream into a new run file at path. The file is removed on
// error.
func WriteRun(ctx context.Context, path string, stream handle.RowStream) (run Run, err error) {
	w, err := row.CreateFile(path)
	if err != nil {
		return
	}
	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	for i := 0; ; i++ {
		if i%checkInterval == 0 {
			if err = ctx.Err(); err != nil {
				return
			}
		}
		var r row.Row
		if r, err = stream.Next(); err == io.EOF {
			err = nil
			break
		} else if err != nil {
			return
		}
		if err = w.Write(r); err != nil {
			return
		}
	}
	closed = true
	if err = w.Close(); err != nil {
		return
	}
	run = Run{Path: path, Rows: w.Rows()}
	return
}

func removeRuns(runs []Run) (err error) {
	for _, r := range runs {
		if rerr := os.Remove(r.Path); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = rerr
		}
	}
	return
}
