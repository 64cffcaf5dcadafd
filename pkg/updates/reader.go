package updates

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/RoaringBitmap/roaring"
	"sibuild/pkg/common"
)

type DeltaReader interface {
	Read(ctx context.Context, f DeltaFile) (*DeletedRows, error)
}

// FileDeltaReader reads delta files from the local filesystem. A file is a
// sequence of records: blocklet id string, page uint32, roaring bitmap bytes.
type FileDeltaReader struct{}

func (FileDeltaReader) Read(ctx context.Context, f DeltaFile) (rows *DeletedRows, err error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return
	}
	defer file.Close()
	return ReadDeltas(bufio.NewReader(file))
}

func ReadDeltas(r io.Reader) (rows *DeletedRows, err error) {
	rows = NewDeletedRows()
	for {
		var blocklet string
		if blocklet, _, err = common.ReadString(r); err == io.EOF {
			err = nil
			return
		} else if err != nil {
			return
		}
		page := uint32(0)
		if err = binary.Read(r, binary.BigEndian, &page); err != nil {
			break
		}
		var buf []byte
		if buf, _, err = common.ReadBytes(r); err != nil {
			break
		}
		bm := roaring.New()
		if err = bm.UnmarshalBinary(buf); err != nil {
			break
		}
		rows.Add(PageKey{Blocklet: blocklet, Page: page}, bm)
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return
}

func WriteDeltas(rows *DeletedRows, w io.Writer) (err error) {
	for _, key := range rows.Keys() {
		if _, err = common.WriteString(key.Blocklet, w); err != nil {
			return
		}
		if err = binary.Write(w, binary.BigEndian, key.Page); err != nil {
			return
		}
		var buf []byte
		if buf, err = rows.pages[key].ToBytes(); err != nil {
			return
		}
		if _, err = common.WriteBytes(buf, w); err != nil {
			return
		}
	}
	return
}

func WriteDeltaFile(path string, rows *DeletedRows) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	w := bufio.NewWriter(f)
	if err = WriteDeltas(rows, w); err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return
}
