package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"sibuild/pkg/common"
)

type Catalog struct {
	*sync.RWMutex
	dir string

	tableAlloc   *common.IdAlloctor
	segmentAlloc *common.IdAlloctor
	blockAlloc   *common.IdAlloctor
	indexAlloc   *common.IdAlloctor

	entries   map[uint64]*TableEntry
	nameNodes map[string]uint64
}

func NewCatalog(dir string) *Catalog {
	return &Catalog{
		RWMutex:      new(sync.RWMutex),
		dir:          dir,
		tableAlloc:   common.NewIdAlloctor(1),
		segmentAlloc: common.NewIdAlloctor(0),
		blockAlloc:   common.NewIdAlloctor(1),
		indexAlloc:   common.NewIdAlloctor(1),
		entries:      make(map[uint64]*TableEntry),
		nameNodes:    make(map[string]uint64),
	}
}

func (catalog *Catalog) Dir() string { return catalog.dir }

func (catalog *Catalog) CreateTable(schema *Schema) (created *TableEntry, err error) {
	catalog.Lock()
	defer catalog.Unlock()
	if _, ok := catalog.nameNodes[schema.Name]; ok {
		err = fmt.Errorf("%w: table %s", ErrDuplicate, schema.Name)
		return
	}
	created = newTableEntry(catalog, catalog.tableAlloc.Alloc(), schema)
	catalog.entries[created.ID] = created
	catalog.nameNodes[schema.Name] = created.ID
	return
}

func (catalog *Catalog) GetTableByName(name string) (*TableEntry, error) {
	catalog.RLock()
	defer catalog.RUnlock()
	id, ok := catalog.nameNodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, name)
	}
	return catalog.entries[id], nil
}

func (catalog *Catalog) GetTableByID(id uint64) (*TableEntry, error) {
	catalog.RLock()
	defer catalog.RUnlock()
	entry, ok := catalog.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: table %d", ErrNotFound, id)
	}
	return entry, nil
}

// PublishIndexSegment records a committed index segment.
func (catalog *Catalog) PublishIndexSegment(ctx context.Context, table, index string, segmentID uint64, rows uint64) error {
	entry, err := catalog.GetTableByName(table)
	if err != nil {
		return err
	}
	idx, err := entry.GetIndex(index)
	if err != nil {
		return err
	}
	idx.MarkSegmentBuilt(segmentID, rows)
	logrus.Infof("%s: published segment %d with %d rows", idx.String(), segmentID, rows)
	return nil
}

func (catalog *Catalog) PPString(level common.PPLevel, depth int, prefix string) string {
	catalog.RLock()
	ids := make([]uint64, 0, len(catalog.entries))
	for id := range catalog.entries {
		ids = append(ids, id)
	}
	catalog.RUnlock()
	s := fmt.Sprintf("%s%sCATALOG[dir=%s]", common.RepeatStr("\t", depth), prefix, catalog.dir)
	if level == common.PPL0 {
		return s
	}
	for id := uint64(1); id <= catalog.tableAlloc.Get(); id++ {
		if entry, err := catalog.GetTableByID(id); err == nil {
			s = fmt.Sprintf("%s\n%s", s, entry.PPString(level, depth+1, prefix))
		}
	}
	return s
}
