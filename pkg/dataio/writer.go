package dataio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"sibuild/pkg/catalog"
	"sibuild/pkg/container/row"
	"sibuild/pkg/iface/data"
)

const (
	PartFileExt = ".rows"
	SuccessFile = "_SUCCESS"
)

// LocalWriterFactory writes index parts into the index segment directory.
type LocalWriterFactory struct{}

func (LocalWriterFactory) NewWriter(ctx context.Context, index *catalog.IndexEntry, segmentID uint64, taskNo int) (data.IndexWriter, error) {
	name := filepath.Join(index.SegmentPath(segmentID), fmt.Sprintf("part-%d-%s%s", taskNo, uuid.NewString(), PartFileExt))
	w, err := row.CreateFile(name)
	if err != nil {
		return nil, err
	}
	return &localWriter{w: w}, nil
}

type localWriter struct {
	w      *row.FileWriter
	rows   uint64
	closed bool
}

func (lw *localWriter) AddRow(r row.Row) error {
	if err := lw.w.Write(r); err != nil {
		return err
	}
	lw.rows++
	return nil
}

func (lw *localWriter) Rows() uint64 { return lw.rows }

func (lw *localWriter) Finish() error {
	lw.closed = true
	return lw.w.Close()
}

// Close without Finish drops the partial part file.
func (lw *localWriter) Close() error {
	if lw.closed {
		return nil
	}
	lw.closed = true
	err := lw.w.Close()
	if rerr := os.Remove(lw.w.Name()); err == nil {
		err = rerr
	}
	logrus.Debugf("Dropped partial part %s", lw.w.Name())
	return err
}

func WriteSuccessMarker(dir string, rows uint64) error {
	return os.WriteFile(filepath.Join(dir, SuccessFile), []byte(strconv.FormatUint(rows, 10)), 0644)
}

func ReadSuccessMarker(dir string) (uint64, error) {
	buf, err := os.ReadFile(filepath.Join(dir, SuccessFile))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(buf)), 10, 64)
}

// ReadIndexSegment returns the rows of every part file in dir, part by part
// in name order.
func ReadIndexSegment(dir string) (rows []row.Row, err error) {
	names, err := filepath.Glob(filepath.Join(dir, "part-*"+PartFileExt))
	if err != nil {
		return
	}
	sort.Strings(names)
	for _, name := range names {
		var r *row.FileReader
		if r, err = row.OpenFile(name); err != nil {
			return
		}
		for {
			var rr row.Row
			if rr, err = r.Read(); err == io.EOF {
				err = nil
				break
			} else if err != nil {
				r.Close()
				return
			}
			rows = append(rows, rr)
		}
		r.Close()
	}
	return
}
