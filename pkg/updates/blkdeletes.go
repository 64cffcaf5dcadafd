package updates

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
)

type PageKey struct {
	Blocklet string
	Page     uint32
}

// DeletedRows maps a page to the bitmap of its deleted row ordinals. It is
// built once by a resolution and never mutated after publication.
type DeletedRows struct {
	pages map[PageKey]*roaring.Bitmap
	count uint64
}

func NewDeletedRows() *DeletedRows {
	return &DeletedRows{pages: make(map[PageKey]*roaring.Bitmap)}
}

func (d *DeletedRows) Add(key PageKey, rows *roaring.Bitmap) {
	if rows == nil || rows.IsEmpty() {
		return
	}
	if bm, ok := d.pages[key]; ok {
		d.count -= bm.GetCardinality()
		bm.Or(rows)
		d.count += bm.GetCardinality()
		return
	}
	bm := rows.Clone()
	d.pages[key] = bm
	d.count += bm.GetCardinality()
}

func (d *DeletedRows) Merge(o *DeletedRows) {
	for key, bm := range o.pages {
		d.Add(key, bm)
	}
}

// Page returns the deleted rows of one page, nil when none are deleted.
func (d *DeletedRows) Page(blocklet string, page uint32) *roaring.Bitmap {
	if d == nil {
		return nil
	}
	return d.pages[PageKey{Blocklet: blocklet, Page: page}]
}

func (d *DeletedRows) IsDeleted(blocklet string, page, row uint32) bool {
	bm := d.Page(blocklet, page)
	return bm != nil && bm.Contains(row)
}

func (d *DeletedRows) Count() uint64 {
	if d == nil {
		return 0
	}
	return d.count
}

func (d *DeletedRows) Keys() []PageKey {
	keys := make([]PageKey, 0, len(d.pages))
	for key := range d.pages {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Blocklet != keys[j].Blocklet {
			return keys[i].Blocklet < keys[j].Blocklet
		}
		return keys[i].Page < keys[j].Page
	})
	return keys
}

func (d *DeletedRows) String() string {
	return fmt.Sprintf("DeletedRows[pages=%d,rows=%d]", len(d.pages), d.count)
}

type Snapshot struct {
	Rows      *DeletedRows
	Timestamp uint64
}

var emptySnapshot = &Snapshot{Rows: NewDeletedRows()}

// BlockDeletes is the deleted rows state shared by every scan of a block.
// The snapshot is swapped wholesale and only for a strictly newer one.
type BlockDeletes struct {
	snap atomic.Pointer[Snapshot]
}

func (blk *BlockDeletes) Snapshot() *Snapshot {
	if snap := blk.snap.Load(); snap != nil {
		return snap
	}
	return emptySnapshot
}

func (blk *BlockDeletes) Timestamp() uint64 { return blk.Snapshot().Timestamp }

func (blk *BlockDeletes) Publish(snap *Snapshot) bool {
	for {
		curr := blk.snap.Load()
		if curr != nil && curr.Timestamp >= snap.Timestamp {
			return false
		}
		if blk.snap.CompareAndSwap(curr, snap) {
			return true
		}
	}
}
