package row

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pierrec/lz4/v4"
	"sibuild/pkg/container/types"
)

const (
	tagNull byte = iota
	tagBool
	tagInt8
	tagInt16
	tagInt32
	tagInt64
	tagFloat32
	tagFloat64
	tagDecimal
	tagBytes
)

// Writer appends rows to an lz4 compressed stream.
type Writer struct {
	zw   *lz4.Writer
	bw   *bufio.Writer
	buf  [12]byte
	rows int
}

func NewWriter(w io.Writer) *Writer {
	zw := lz4.NewWriter(w)
	return &Writer{
		zw: zw,
		bw: bufio.NewWriter(zw),
	}
}

func (w *Writer) Rows() int { return w.rows }

func (w *Writer) Write(r Row) (err error) {
	binary.BigEndian.PutUint16(w.buf[:2], uint16(len(r)))
	if _, err = w.bw.Write(w.buf[:2]); err != nil {
		return
	}
	for _, v := range r {
		if err = w.writeValue(v); err != nil {
			return
		}
	}
	w.rows++
	return
}

func (w *Writer) writeValue(v interface{}) (err error) {
	var tag byte
	var payload []byte
	switch val := v.(type) {
	case nil:
		tag = tagNull
	case bool:
		tag = tagBool
		payload = w.buf[:1]
		payload[0] = 0
		if val {
			payload[0] = 1
		}
	case int8:
		tag = tagInt8
		payload = w.buf[:1]
		payload[0] = byte(val)
	case int16:
		tag = tagInt16
		payload = w.buf[:2]
		binary.BigEndian.PutUint16(payload, uint16(val))
	case int32:
		tag = tagInt32
		payload = w.buf[:4]
		binary.BigEndian.PutUint32(payload, uint32(val))
	case int64:
		tag = tagInt64
		payload = w.buf[:8]
		binary.BigEndian.PutUint64(payload, uint64(val))
	case float32:
		tag = tagFloat32
		payload = w.buf[:4]
		binary.BigEndian.PutUint32(payload, math.Float32bits(val))
	case float64:
		tag = tagFloat64
		payload = w.buf[:8]
		binary.BigEndian.PutUint64(payload, math.Float64bits(val))
	case types.Decimal:
		tag = tagDecimal
		payload = w.buf[:12]
		binary.BigEndian.PutUint64(payload, uint64(val.V))
		binary.BigEndian.PutUint32(payload[8:], uint32(val.Scale))
	case []byte:
		if err = w.bw.WriteByte(tagBytes); err != nil {
			return
		}
		binary.BigEndian.PutUint32(w.buf[:4], uint32(len(val)))
		if _, err = w.bw.Write(w.buf[:4]); err != nil {
			return
		}
		_, err = w.bw.Write(val)
		return
	default:
		return fmt.Errorf("sibuild: cannot encode %T", v)
	}
	if err = w.bw.WriteByte(tag); err != nil {
		return
	}
	if len(payload) > 0 {
		_, err = w.bw.Write(payload)
	}
	return
}

// Close flushes the stream. The underlying writer is left open.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.zw.Close()
}

type Reader struct {
	br  *bufio.Reader
	buf [12]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(lz4.NewReader(r))}
}

// Read returns the next row or io.EOF.
func (r *Reader) Read() (Row, error) {
	if _, err := io.ReadFull(r.br, r.buf[:2]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(r.buf[:2]))
	out := make(Row, n)
	for i := range out {
		v, err := r.readValue()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *Reader) readValue() (v interface{}, err error) {
	tag, err := r.br.ReadByte()
	if err != nil {
		return
	}
	size := 0
	switch tag {
	case tagNull:
		return
	case tagBool, tagInt8:
		size = 1
	case tagInt16:
		size = 2
	case tagInt32, tagFloat32, tagBytes:
		size = 4
	case tagInt64, tagFloat64:
		size = 8
	case tagDecimal:
		size = 12
	default:
		err = fmt.Errorf("sibuild: unknown value tag %d", tag)
		return
	}
	buf := r.buf[:size]
	if _, err = io.ReadFull(r.br, buf); err != nil {
		return
	}
	switch tag {
	case tagBool:
		v = buf[0] != 0
	case tagInt8:
		v = int8(buf[0])
	case tagInt16:
		v = int16(binary.BigEndian.Uint16(buf))
	case tagInt32:
		v = int32(binary.BigEndian.Uint32(buf))
	case tagFloat32:
		v = math.Float32frombits(binary.BigEndian.Uint32(buf))
	case tagInt64:
		v = int64(binary.BigEndian.Uint64(buf))
	case tagFloat64:
		v = math.Float64frombits(binary.BigEndian.Uint64(buf))
	case tagDecimal:
		v = types.Decimal{
			V:     int64(binary.BigEndian.Uint64(buf)),
			Scale: int32(binary.BigEndian.Uint32(buf[8:])),
		}
	case tagBytes:
		data := make([]byte, binary.BigEndian.Uint32(buf))
		if _, err = io.ReadFull(r.br, data); err != nil {
			return
		}
		v = data
	}
	return
}

// FileWriter writes rows to a new file.
type FileWriter struct {
	*Writer
	f *os.File
}

func CreateFile(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileWriter{Writer: NewWriter(f), f: f}, nil
}

func (w *FileWriter) Name() string { return w.f.Name() }

func (w *FileWriter) Close() error {
	err := w.Writer.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}

type FileReader struct {
	*Reader
	f *os.File
}

func OpenFile(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileReader{Reader: NewReader(f), f: f}, nil
}

func (r *FileReader) Close() error { return r.f.Close() }
