package data

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"sibuild/pkg/catalog"
	"sibuild/pkg/container/vector"
)

// BlockDescriptor is one block to scan and the blocklets left after pruning.
type BlockDescriptor struct {
	Block     *catalog.BlockEntry
	Blocklets []int
}

func NewBlockDescriptor(blk *catalog.BlockEntry, blocklets ...int) *BlockDescriptor {
	if len(blocklets) == 0 {
		blocklets = make([]int, blk.Blocklets())
		for i := range blocklets {
			blocklets[i] = i
		}
	}
	return &BlockDescriptor{Block: blk, Blocklets: blocklets}
}

func (desc *BlockDescriptor) Version() int { return desc.Block.Version() }

func (desc *BlockDescriptor) String() string {
	return fmt.Sprintf("%s%v", desc.Block.AsCommonID().BlockString(), desc.Blocklets)
}

// NullSurrogate is the dictionary key of a null dictionary value.
const NullSurrogate int32 = -1

type Position struct {
	Blocklet int
	Page     int
	Row      int
	// Ref is the implicit position reference column value.
	Ref []byte
}

// RawRow is one scanned row before flattening. DictKey packs one 4 byte
// big-endian surrogate per dictionary column. A nil complex key means the
// block has no data for that column.
type RawRow struct {
	DictKey     []byte
	NoDictKeys  [][]byte
	ComplexKeys [][]byte
	Measures    []interface{}
	Position    Position
}

func (r *RawRow) DictKeyAt(i int) int32 {
	return int32(binary.BigEndian.Uint32(r.DictKey[i*4:]))
}

type RowBatch struct {
	Rows []*RawRow
}

func (bat *RowBatch) Length() int { return len(bat.Rows) }

// PageReader reads the pages of one block into projected vectors.
type PageReader interface {
	io.Closer
	Pages(blocklet int) (int, error)
	// HasColumn is false for projected columns added after the block was
	// written.
	HasColumn(i int) bool
	// ReadPage fills bat in projection order and sets bat.Rows.
	ReadPage(ctx context.Context, blocklet, page int, bat *vector.Batch) error
}

type PageReaderFactory interface {
	Open(ctx context.Context, blk *catalog.BlockEntry, cols []*catalog.ColDef) (PageReader, error)
}

type DictionaryService interface {
	Dictionary(table string, col *catalog.ColDef) (vector.Dictionary, error)
}
