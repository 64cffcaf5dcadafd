package catalog

import (
	"fmt"
	"path/filepath"

	"sibuild/pkg/common"
	"sibuild/pkg/updates"
)

type BlockEntry struct {
	*BaseEntry
	segment   *SegmentEntry
	version   int
	blocklets int
	deltas    []updates.DeltaFile
	deletes   updates.BlockDeletes
}

func newBlockEntry(segment *SegmentEntry, id uint64, version, blocklets int) *BlockEntry {
	return &BlockEntry{
		BaseEntry: newBaseEntry(id),
		segment:   segment,
		version:   version,
		blocklets: blocklets,
	}
}

func (entry *BlockEntry) GetSegment() *SegmentEntry { return entry.segment }
func (entry *BlockEntry) Version() int              { return entry.version }
func (entry *BlockEntry) Blocklets() int            { return entry.blocklets }

func (entry *BlockEntry) FilePath() string {
	return filepath.Join(entry.segment.Path(), fmt.Sprintf("part-%d.data", entry.ID))
}

func (entry *BlockEntry) AddDeltaFile(f updates.DeltaFile) {
	entry.Lock()
	defer entry.Unlock()
	entry.deltas = append(entry.deltas, f)
}

// DeltaKey returns the key of the delta files known at call time.
func (entry *BlockEntry) DeltaKey() updates.DeltaKey {
	entry.RLock()
	defer entry.RUnlock()
	return updates.NewDeltaKey(entry.deltas...)
}

// Deletes is the process wide deleted rows state shared by all scans.
func (entry *BlockEntry) Deletes() *updates.BlockDeletes {
	return &entry.deletes
}

func (entry *BlockEntry) AsCommonID() *common.ID {
	return &common.ID{
		TableID:   entry.segment.table.ID,
		SegmentID: entry.segment.ID,
		BlockID:   entry.ID,
	}
}

func (entry *BlockEntry) PPString(level common.PPLevel, depth int, prefix string) string {
	return fmt.Sprintf("%s%s%s", common.RepeatStr("\t", depth), prefix, entry.String())
}

func (entry *BlockEntry) String() string {
	return fmt.Sprintf("BLOCK%s[blocklets=%d,deletes=%d]", entry.BaseEntry.String(), entry.blocklets, entry.deletes.Timestamp())
}
