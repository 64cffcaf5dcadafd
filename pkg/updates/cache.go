package updates

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"sibuild/pkg/stats"
)

// Cache resolves the deleted rows of blocks. For one DeltaKey at most one
// caller reads the delta files at a time; the others wait and then see the
// published snapshot.
type Cache struct {
	reader   DeltaReader
	recorder stats.Recorder
	locks    sync.Map
	reads    atomic.Int64
}

func NewCache(reader DeltaReader, recorder stats.Recorder) *Cache {
	if recorder == nil {
		recorder = stats.Noop
	}
	return &Cache{
		reader:   reader,
		recorder: recorder,
	}
}

// Reads returns how many resolutions actually read delta files.
func (c *Cache) Reads() int64 { return c.reads.Load() }

func (c *Cache) Resolve(ctx context.Context, blk *BlockDeletes, key DeltaKey) (*DeletedRows, error) {
	if snap := blk.Snapshot(); snap.Timestamp >= key.Latest() {
		return snap.Rows, nil
	}
	v, _ := c.locks.LoadOrStore(key.Key(), new(sync.Mutex))
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	if snap := blk.Snapshot(); snap.Timestamp >= key.Latest() {
		return snap.Rows, nil
	}
	rows := NewDeletedRows()
	for _, f := range key.Files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deltas, err := c.reader.Read(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("read delete delta %s: %w", f.Path, err)
		}
		rows.Merge(deltas)
	}
	c.reads.Add(1)
	c.recorder.DeltaReads(1)
	snap := &Snapshot{Rows: rows, Timestamp: key.Latest()}
	if !blk.Publish(snap) {
		snap = blk.Snapshot()
	}
	c.locks.Delete(key.Key())
	logrus.Debugf("Resolved %s: %s", key.String(), snap.Rows.String())
	return snap.Rows, nil
}
