package scan

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"sibuild/pkg/catalog"
	"sibuild/pkg/container/types"
	"sibuild/pkg/container/vector"
	"sibuild/pkg/iface/data"
	"sibuild/pkg/iface/handle"
	"sibuild/pkg/stats"
	"sibuild/pkg/updates"
)

type state int8

const (
	stateReady state = iota
	stateScanning
	stateExhausted
)

type Options struct {
	Cache     *updates.Cache
	Readers   data.PageReaderFactory
	Recorder  stats.Recorder
	BatchSize int
}

var _ handle.RowIterator = (*PrunedRowIterator)(nil)

// PrunedRowIterator scans the pruned blocklets of a list of blocks, one page
// per batch, skipping deleted rows.
type PrunedRowIterator struct {
	opts   Options
	proj   *catalog.Projection
	blocks []*data.BlockDescriptor
	bat    *vector.Batch
	curr   *blockScan
	state  state
	stats  Statistics
	closed bool
}

type blockScan struct {
	desc      *data.BlockDescriptor
	reader    data.PageReader
	assembler *assembler
	deletes   *updates.DeletedRows
	blocklet  int
	pages     int
	page      int
}

func NewPrunedRowIterator(opts Options, cols []*catalog.ColDef, blocks []*data.BlockDescriptor) *PrunedRowIterator {
	if opts.Recorder == nil {
		opts.Recorder = stats.Noop
	}
	typs := make([]types.Type, len(cols))
	for i, def := range cols {
		typs[i] = def.Type
	}
	remaining := make([]*data.BlockDescriptor, len(blocks))
	copy(remaining, blocks)
	return &PrunedRowIterator{
		opts:   opts,
		proj:   catalog.NewProjection(cols),
		blocks: remaining,
		bat:    vector.NewBatch(typs, opts.BatchSize),
	}
}

func (it *PrunedRowIterator) Statistics() Statistics { return it.stats }

// HasNext reports whether blocks or pages are left. Next may still return
// io.EOF when everything left is empty or deleted.
func (it *PrunedRowIterator) HasNext() bool {
	if it.closed || it.state == stateExhausted {
		return false
	}
	return it.curr != nil || len(it.blocks) > 0
}

// Next returns the live rows of the next non-empty page. The batch is valid
// until the next call.
func (it *PrunedRowIterator) Next(ctx context.Context) (*data.RowBatch, error) {
	if it.closed {
		return nil, io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if it.curr == nil {
			if len(it.blocks) == 0 {
				it.state = stateExhausted
				return nil, io.EOF
			}
			if err := it.openNext(ctx); err != nil {
				return nil, err
			}
		}
		rows, err := it.nextPage(ctx)
		if err == io.EOF {
			it.closeCurr()
			continue
		} else if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		return &data.RowBatch{Rows: rows}, nil
	}
}

func (it *PrunedRowIterator) openNext(ctx context.Context) (err error) {
	desc := it.blocks[0]
	it.blocks = it.blocks[1:]
	blk := desc.Block
	it.stats.Blocks++
	it.stats.TotalBlocklets += blk.Blocklets()
	it.stats.ValidBlocklets += len(desc.Blocklets)

	start := time.Now()
	deletes, err := it.opts.Cache.Resolve(ctx, blk.Deletes(), blk.DeltaKey())
	if err != nil {
		return fmt.Errorf("%s: %w", desc.String(), err)
	}
	reader, err := it.opts.Readers.Open(ctx, blk, it.proj.Cols)
	if err != nil {
		return fmt.Errorf("%s: %w", desc.String(), err)
	}
	it.stats.ReadTime += time.Since(start)
	id := blk.AsCommonID()
	it.curr = &blockScan{
		desc:      desc,
		reader:    reader,
		assembler: newAssembler(it.proj, reader, fmt.Sprintf("%d/%d", id.SegmentID, id.BlockID)),
		deletes:   deletes,
		pages:     -1,
	}
	it.state = stateScanning
	logrus.Debugf("Scanning %s with %d deleted rows", desc.String(), deletes.Count())
	return
}

func (it *PrunedRowIterator) nextPage(ctx context.Context) (rows []*data.RawRow, err error) {
	s := it.curr
	for s.blocklet < len(s.desc.Blocklets) {
		blocklet := s.desc.Blocklets[s.blocklet]
		if s.pages < 0 {
			if s.pages, err = s.reader.Pages(blocklet); err != nil {
				return
			}
			s.page = 0
			it.stats.ScannedBlocklets++
			it.stats.TotalPages += s.pages
		}
		if s.page >= s.pages {
			s.blocklet++
			s.pages = -1
			continue
		}
		page := s.page
		s.page++

		it.bat.Reset()
		start := time.Now()
		if err = s.reader.ReadPage(ctx, blocklet, page, it.bat); err != nil {
			err = fmt.Errorf("%s: blocklet %d page %d: %w", s.desc.String(), blocklet, page, err)
			return
		}
		it.stats.ReadTime += time.Since(start)
		it.stats.ScannedPages++
		it.stats.RowsScanned += it.bat.Rows

		start = time.Now()
		deleted := s.deletes.Page(strconv.Itoa(blocklet), uint32(page))
		if rows, err = s.assembler.assemble(it.bat, blocklet, page, deleted); err != nil {
			err = fmt.Errorf("%s: blocklet %d page %d: %w", s.desc.String(), blocklet, page, err)
			return
		}
		it.stats.ScanTime += time.Since(start)
		it.stats.RowsDeleted += it.bat.Rows - len(rows)
		if len(rows) > 0 {
			it.stats.ValidPages++
			return
		}
	}
	err = io.EOF
	return
}

func (it *PrunedRowIterator) closeCurr() (err error) {
	if it.curr == nil {
		return
	}
	err = it.curr.reader.Close()
	it.curr = nil
	return
}

// Close releases the open page reader. It is safe to call more than once.
func (it *PrunedRowIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.state = stateExhausted
	it.blocks = nil
	err := it.closeCurr()
	it.stats.flush(it.opts.Recorder)
	logrus.Debugf("Scan closed: %s", it.stats.String())
	return err
}
