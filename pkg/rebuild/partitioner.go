package rebuild

import (
	"context"

	"sibuild/pkg/catalog"
	"sibuild/pkg/iface/data"
)

// BlockPartitioner splits the blocks of a segment round robin over at most
// Tasks partitions.
type BlockPartitioner struct {
	Tasks int
}

func (p BlockPartitioner) Partition(ctx context.Context, segment *catalog.SegmentEntry) ([]*data.Partition, error) {
	blocks := segment.Blocks()
	if len(blocks) == 0 {
		return nil, nil
	}
	n := p.Tasks
	if n <= 0 {
		n = 1
	}
	if n > len(blocks) {
		n = len(blocks)
	}
	parts := make([]*data.Partition, n)
	for i := range parts {
		parts[i] = &data.Partition{SegmentID: segment.ID, TaskNo: i}
	}
	for i, blk := range blocks {
		part := parts[i%n]
		part.Blocks = append(part.Blocks, data.NewBlockDescriptor(blk))
	}
	return parts, nil
}
