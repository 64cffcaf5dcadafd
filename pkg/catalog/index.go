package catalog

import (
	"fmt"
	"path/filepath"
)

// IndexEntry is a secondary index on a table. Built segments are tracked
// with the row count they were committed with.
type IndexEntry struct {
	*BaseEntry
	table   *TableEntry
	name    string
	columns []string
	built   map[uint64]uint64
}

func newIndexEntry(table *TableEntry, id uint64, name string, columns []string) *IndexEntry {
	return &IndexEntry{
		BaseEntry: newBaseEntry(id),
		table:     table,
		name:      name,
		columns:   columns,
		built:     make(map[uint64]uint64),
	}
}

func (entry *IndexEntry) GetTable() *TableEntry { return entry.table }
func (entry *IndexEntry) GetName() string       { return entry.name }
func (entry *IndexEntry) Columns() []string     { return entry.columns }

func (entry *IndexEntry) ColDefs() []*ColDef {
	defs := make([]*ColDef, len(entry.columns))
	for i, col := range entry.columns {
		defs[i] = entry.table.schema.GetCol(col)
	}
	return defs
}

func (entry *IndexEntry) Path() string {
	return filepath.Join(entry.table.catalog.dir, fmt.Sprintf("%s_%s", entry.table.schema.Name, entry.name))
}

func (entry *IndexEntry) SegmentPath(segmentID uint64) string {
	return filepath.Join(entry.Path(), fmt.Sprintf("Segment_%d", segmentID))
}

func (entry *IndexEntry) MarkSegmentBuilt(segmentID, rows uint64) {
	entry.Lock()
	defer entry.Unlock()
	entry.built[segmentID] = rows
}

func (entry *IndexEntry) IsBuilt(segmentID uint64) bool {
	entry.RLock()
	defer entry.RUnlock()
	_, ok := entry.built[segmentID]
	return ok
}

func (entry *IndexEntry) BuiltRows(segmentID uint64) (uint64, bool) {
	entry.RLock()
	defer entry.RUnlock()
	rows, ok := entry.built[segmentID]
	return rows, ok
}

func (entry *IndexEntry) String() string {
	return fmt.Sprintf("INDEX%s[%s.%s%v]", entry.BaseEntry.String(), entry.table.schema.Name, entry.name, entry.columns)
}
