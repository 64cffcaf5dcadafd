package common

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringAndBytes(t *testing.T) {
	var w bytes.Buffer
	n, err := WriteString("blocklet-1", &w)
	assert.Nil(t, err)
	assert.Equal(t, int64(12), n)
	n, err = WriteBytes([]byte{1, 2, 3}, &w)
	assert.Nil(t, err)
	assert.Equal(t, int64(7), n)

	r := bytes.NewReader(w.Bytes())
	str, _, err := ReadString(r)
	assert.Nil(t, err)
	assert.Equal(t, "blocklet-1", str)
	buf, _, err := ReadBytes(r)
	assert.Nil(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf)

	_, _, err = ReadString(r)
	assert.Equal(t, io.EOF, err)

	_, _, err = ReadString(bytes.NewReader([]byte{0, 4}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	_, _, err = ReadBytes(bytes.NewReader([]byte{0, 0, 0, 3, 1}))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestIdAlloctor(t *testing.T) {
	alloc := NewIdAlloctor(1)
	assert.Equal(t, uint64(1), alloc.Alloc())
	assert.Equal(t, uint64(2), alloc.Alloc())
	alloc.SetStart(10)
	assert.Equal(t, uint64(11), alloc.Alloc())
	id := ID{TableID: 1, SegmentID: 2, BlockID: 3}
	assert.Equal(t, "BLK<1:2-3>", id.BlockString())
}
