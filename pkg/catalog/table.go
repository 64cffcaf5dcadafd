package catalog

import (
	"fmt"
	"path/filepath"

	"github.com/google/btree"
	"sibuild/pkg/common"
)

type TableEntry struct {
	*BaseEntry
	catalog  *Catalog
	schema   *Schema
	segments *btree.BTreeG[*SegmentEntry]
	indexes  map[string]*IndexEntry
}

func newTableEntry(catalog *Catalog, id uint64, schema *Schema) *TableEntry {
	return &TableEntry{
		BaseEntry: newBaseEntry(id),
		catalog:   catalog,
		schema:    schema,
		segments: btree.NewG(8, func(a, b *SegmentEntry) bool {
			return a.ID < b.ID
		}),
		indexes: make(map[string]*IndexEntry),
	}
}

func (entry *TableEntry) GetSchema() *Schema   { return entry.schema }
func (entry *TableEntry) GetCatalog() *Catalog { return entry.catalog }
func (entry *TableEntry) GetName() string      { return entry.schema.Name }

func (entry *TableEntry) Path() string {
	return filepath.Join(entry.catalog.dir, entry.schema.Name)
}

func (entry *TableEntry) CreateSegment(status SegmentStatus) *SegmentEntry {
	entry.Lock()
	defer entry.Unlock()
	segment := newSegmentEntry(entry, entry.catalog.segmentAlloc.Alloc(), status)
	entry.segments.ReplaceOrInsert(segment)
	return segment
}

func (entry *TableEntry) GetSegmentByID(id uint64) (*SegmentEntry, error) {
	entry.RLock()
	defer entry.RUnlock()
	segment, ok := entry.segments.Get(&SegmentEntry{BaseEntry: &BaseEntry{ID: id}})
	if !ok {
		return nil, fmt.Errorf("%w: segment %d", ErrNotFound, id)
	}
	return segment, nil
}

// Segments returns every segment in id order.
func (entry *TableEntry) Segments() []*SegmentEntry {
	entry.RLock()
	defer entry.RUnlock()
	segments := make([]*SegmentEntry, 0, entry.segments.Len())
	entry.segments.Ascend(func(segment *SegmentEntry) bool {
		segments = append(segments, segment)
		return true
	})
	return segments
}

func (entry *TableEntry) ValidSegments() []*SegmentEntry {
	var valid []*SegmentEntry
	for _, segment := range entry.Segments() {
		if segment.IsValid() {
			valid = append(valid, segment)
		}
	}
	return valid
}

// SegmentsToBuild returns the valid segments index has not been built on.
func (entry *TableEntry) SegmentsToBuild(index *IndexEntry) []*SegmentEntry {
	var pending []*SegmentEntry
	for _, segment := range entry.ValidSegments() {
		if !index.IsBuilt(segment.ID) {
			pending = append(pending, segment)
		}
	}
	return pending
}

func (entry *TableEntry) CreateIndex(name string, columns ...string) (created *IndexEntry, err error) {
	if len(columns) == 0 {
		err = fmt.Errorf("%w: index %s has no columns", ErrSchema, name)
		return
	}
	for _, col := range columns {
		if entry.schema.GetCol(col) == nil {
			err = fmt.Errorf("%w: column %s", ErrNotFound, col)
			return
		}
	}
	entry.Lock()
	defer entry.Unlock()
	if _, ok := entry.indexes[name]; ok {
		err = fmt.Errorf("%w: index %s", ErrDuplicate, name)
		return
	}
	created = newIndexEntry(entry, entry.catalog.indexAlloc.Alloc(), name, columns)
	entry.indexes[name] = created
	return
}

func (entry *TableEntry) GetIndex(name string) (*IndexEntry, error) {
	entry.RLock()
	defer entry.RUnlock()
	idx, ok := entry.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: index %s on %s", ErrNotFound, name, entry.schema.Name)
	}
	return idx, nil
}

func (entry *TableEntry) PPString(level common.PPLevel, depth int, prefix string) string {
	s := fmt.Sprintf("%s%s%s", common.RepeatStr("\t", depth), prefix, entry.String())
	if level == common.PPL0 {
		return s
	}
	for _, segment := range entry.Segments() {
		s = fmt.Sprintf("%s\n%s", s, segment.PPString(level, depth+1, prefix))
	}
	return s
}

func (entry *TableEntry) String() string {
	return fmt.Sprintf("TABLE%s[name=%s]", entry.BaseEntry.String(), entry.schema.Name)
}
