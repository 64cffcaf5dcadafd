package common

import (
	"fmt"
	"sync/atomic"
)

type ID struct {
	TableID   uint64
	SegmentID uint64
	BlockID   uint64
}

func (id *ID) SegmentString() string {
	return fmt.Sprintf("SEG<%d:%d>", id.TableID, id.SegmentID)
}

func (id *ID) BlockString() string {
	return fmt.Sprintf("BLK<%d:%d-%d>", id.TableID, id.SegmentID, id.BlockID)
}

func (id *ID) String() string { return id.BlockString() }

type IdAlloctor struct {
	id uint64
}

func NewIdAlloctor(from uint64) *IdAlloctor {
	return &IdAlloctor{id: from - 1}
}

func (alloc *IdAlloctor) Alloc() uint64 {
	return atomic.AddUint64(&alloc.id, 1)
}

func (alloc *IdAlloctor) Get() uint64 {
	return atomic.LoadUint64(&alloc.id)
}

func (alloc *IdAlloctor) SetStart(start uint64) {
	atomic.StoreUint64(&alloc.id, start)
}
