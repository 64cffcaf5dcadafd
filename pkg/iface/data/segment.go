package data

import (
	"context"
	"fmt"

	"sibuild/pkg/catalog"
	"sibuild/pkg/container/row"
)

// Partition is the unit of work of one rebuild task.
type Partition struct {
	SegmentID uint64
	TaskNo    int
	Blocks    []*BlockDescriptor
}

func (p *Partition) String() string {
	return fmt.Sprintf("PARTITION[seg=%d,task=%d,blocks=%d]", p.SegmentID, p.TaskNo, len(p.Blocks))
}

type Partitioner interface {
	Partition(ctx context.Context, segment *catalog.SegmentEntry) ([]*Partition, error)
}

// IndexWriter persists the sorted rows of one task.
type IndexWriter interface {
	AddRow(r row.Row) error
	Finish() error
	Close() error
	Rows() uint64
}

type WriterFactory interface {
	NewWriter(ctx context.Context, index *catalog.IndexEntry, segmentID uint64, taskNo int) (IndexWriter, error)
}

type StatusPublisher interface {
	PublishIndexSegment(ctx context.Context, table, index string, segmentID uint64, rows uint64) error
}
