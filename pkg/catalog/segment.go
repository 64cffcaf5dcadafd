package catalog

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"sibuild/pkg/common"
)

type SegmentStatus int32

const (
	StatusSuccess SegmentStatus = iota
	StatusLoadPartialSuccess
	StatusInProgress
	StatusMarkedForDelete
	StatusCompacted
)

func (s SegmentStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusLoadPartialSuccess:
		return "LoadPartialSuccess"
	case StatusInProgress:
		return "InProgress"
	case StatusMarkedForDelete:
		return "MarkedForDelete"
	case StatusCompacted:
		return "Compacted"
	}
	return "Unknown"
}

type SegmentEntry struct {
	*BaseEntry
	table  *TableEntry
	status atomic.Int32
	blocks []*BlockEntry
}

func newSegmentEntry(table *TableEntry, id uint64, status SegmentStatus) *SegmentEntry {
	e := &SegmentEntry{
		BaseEntry: newBaseEntry(id),
		table:     table,
	}
	e.status.Store(int32(status))
	return e
}

func (entry *SegmentEntry) GetTable() *TableEntry { return entry.table }

func (entry *SegmentEntry) Name() string {
	return fmt.Sprintf("Segment_%d", entry.ID)
}

func (entry *SegmentEntry) Path() string {
	return filepath.Join(entry.table.Path(), entry.Name())
}

func (entry *SegmentEntry) GetStatus() SegmentStatus {
	return SegmentStatus(entry.status.Load())
}

func (entry *SegmentEntry) SetStatus(status SegmentStatus) {
	entry.status.Store(int32(status))
}

// IsValid reports whether the segment holds readable data.
func (entry *SegmentEntry) IsValid() bool {
	status := entry.GetStatus()
	return status == StatusSuccess || status == StatusLoadPartialSuccess
}

func (entry *SegmentEntry) CreateBlock(version int, blocklets int) *BlockEntry {
	entry.Lock()
	defer entry.Unlock()
	id := entry.table.catalog.blockAlloc.Alloc()
	blk := newBlockEntry(entry, id, version, blocklets)
	entry.blocks = append(entry.blocks, blk)
	return blk
}

func (entry *SegmentEntry) GetBlockEntryByID(id uint64) (*BlockEntry, error) {
	entry.RLock()
	defer entry.RUnlock()
	for _, blk := range entry.blocks {
		if blk.ID == id {
			return blk, nil
		}
	}
	return nil, fmt.Errorf("%w: block %d", ErrNotFound, id)
}

func (entry *SegmentEntry) Blocks() []*BlockEntry {
	entry.RLock()
	defer entry.RUnlock()
	blocks := make([]*BlockEntry, len(entry.blocks))
	copy(blocks, entry.blocks)
	return blocks
}

func (entry *SegmentEntry) AsCommonID() *common.ID {
	return &common.ID{
		TableID:   entry.table.ID,
		SegmentID: entry.ID,
	}
}

func (entry *SegmentEntry) PPString(level common.PPLevel, depth int, prefix string) string {
	s := fmt.Sprintf("%s%s%s", common.RepeatStr("\t", depth), prefix, entry.String())
	if level == common.PPL0 {
		return s
	}
	for _, blk := range entry.Blocks() {
		s = fmt.Sprintf("%s\n%s", s, blk.PPString(level, depth+1, prefix))
	}
	return s
}

func (entry *SegmentEntry) String() string {
	return fmt.Sprintf("SEGMENT%s[%s]", entry.BaseEntry.String(), entry.GetStatus())
}
