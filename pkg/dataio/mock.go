package dataio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"sibuild/pkg/catalog"
	"sibuild/pkg/container/types"
	"sibuild/pkg/container/vector"
	"sibuild/pkg/iface/data"
)

type mockBlockFile struct {
	pages [][]*Page
	cols  map[string]bool
}

func (bf *mockBlockFile) Blocklets() int                { return len(bf.pages) }
func (bf *mockBlockFile) Pages(blocklet int) int        { return len(bf.pages[blocklet]) }
func (bf *mockBlockFile) HasColumn(name string) bool    { return bf.cols[name] }
func (bf *mockBlockFile) Page(blocklet, page int) *Page { return bf.pages[blocklet][page] }

type mockDictionary struct {
	values [][]byte
	keys   map[string]int32
}

// MockStore keeps block files in memory and serves them as pages. It also
// acts as the dictionary service of the tables it holds.
type MockStore struct {
	sync.RWMutex
	files   map[uint64]*mockBlockFile
	dicts   map[string]*mockDictionary
	errs    map[uint64]error
	opened  atomic.Int32
	readers atomic.Int32
}

func NewMockStore() *MockStore {
	return &MockStore{
		files: make(map[uint64]*mockBlockFile),
		dicts: make(map[string]*mockDictionary),
		errs:  make(map[uint64]error),
	}
}

func dictName(table, col string) string {
	return fmt.Sprintf("%s.%s", table, col)
}

// AddBlock stores rows for blk. Rows are split into pages of pageRows and
// spread over the block's blocklets round robin. Columns of the schema not
// in cols are treated as added after the block was written.
func (s *MockStore) AddBlock(blk *catalog.BlockEntry, cols []string, rows [][]interface{}, pageRows int) {
	schema := blk.GetSegment().GetTable().GetSchema()
	bf := &mockBlockFile{
		pages: make([][]*Page, blk.Blocklets()),
		cols:  make(map[string]bool),
	}
	for _, col := range cols {
		bf.cols[col] = true
	}
	s.Lock()
	defer s.Unlock()
	for start, n := 0, 0; start < len(rows); start, n = start+pageRows, n+1 {
		end := start + pageRows
		if end > len(rows) {
			end = len(rows)
		}
		page := &Page{Rows: end - start, Cols: make(map[string][]interface{})}
		for ci, col := range cols {
			values := make([]interface{}, 0, end-start)
			for _, r := range rows[start:end] {
				values = append(values, r[ci])
			}
			if def := schema.GetCol(col); def != nil && def.Kind == catalog.KindDict {
				s.registerLocked(dictName(schema.Name, col), values)
			}
			page.Cols[col] = values
		}
		blocklet := n % blk.Blocklets()
		bf.pages[blocklet] = append(bf.pages[blocklet], page)
	}
	s.files[blk.ID] = bf
}

func (s *MockStore) registerLocked(name string, values []interface{}) {
	dict := s.dicts[name]
	if dict == nil {
		dict = &mockDictionary{keys: make(map[string]int32)}
		s.dicts[name] = dict
	}
	for _, v := range values {
		if v == nil {
			continue
		}
		key := string(v.([]byte))
		if _, ok := dict.keys[key]; !ok {
			dict.keys[key] = int32(len(dict.values))
			dict.values = append(dict.values, []byte(key))
		}
	}
}

func (s *MockStore) InjectError(blockID uint64, err error) {
	s.Lock()
	defer s.Unlock()
	s.errs[blockID] = err
}

// Opened returns how many readers were opened, Readers how many are open.
func (s *MockStore) Opened() int  { return int(s.opened.Load()) }
func (s *MockStore) Readers() int { return int(s.readers.Load()) }

func (s *MockStore) Dictionary(table string, col *catalog.ColDef) (vector.Dictionary, error) {
	s.RLock()
	defer s.RUnlock()
	dict := s.dicts[dictName(table, col.Name)]
	if dict == nil {
		return vector.NewDictionary(nil), nil
	}
	values := make([][]byte, len(dict.values))
	copy(values, dict.values)
	return vector.NewDictionary(values), nil
}

func (s *MockStore) surrogate(table, col string, v []byte) int32 {
	return s.dicts[dictName(table, col)].keys[string(v)]
}

func (s *MockStore) Open(ctx context.Context, blk *catalog.BlockEntry, cols []*catalog.ColDef) (data.PageReader, error) {
	s.RLock()
	bf := s.files[blk.ID]
	err := s.errs[blk.ID]
	s.RUnlock()
	if bf == nil {
		return nil, fmt.Errorf("%w: block file %s", catalog.ErrNotFound, blk.FilePath())
	}
	s.opened.Add(1)
	s.readers.Add(1)
	return &mockPageReader{
		store: s,
		table: blk.GetSegment().GetTable().GetName(),
		file:  bf,
		cols:  cols,
		err:   err,
	}, nil
}

type mockPageReader struct {
	store  *MockStore
	table  string
	file   BlockFile
	cols   []*catalog.ColDef
	err    error
	closed bool
}

func (r *mockPageReader) Close() error {
	if !r.closed {
		r.closed = true
		r.store.readers.Add(-1)
	}
	return nil
}

func (r *mockPageReader) Pages(blocklet int) (int, error) {
	if blocklet < 0 || blocklet >= r.file.Blocklets() {
		return 0, fmt.Errorf("%w: blocklet %d", catalog.ErrNotFound, blocklet)
	}
	return r.file.Pages(blocklet), nil
}

func (r *mockPageReader) HasColumn(i int) bool {
	return r.file.HasColumn(r.cols[i].Name)
}

func (r *mockPageReader) ReadPage(ctx context.Context, blocklet, page int, bat *vector.Batch) error {
	if r.err != nil {
		return r.err
	}
	p := r.file.Page(blocklet, page)
	for i, def := range r.cols {
		vec := bat.Vecs[i]
		vec.Reserve(p.Rows)
		values, ok := p.Cols[def.Name]
		if !ok {
			vec.PutNulls(0, p.Rows)
			continue
		}
		switch def.Kind {
		case catalog.KindDict:
			r.fillDict(vec, def, values)
		case catalog.KindComplex:
			if err := fillComplex(vec, values); err != nil {
				return err
			}
		case catalog.KindMeasure:
			vec.SetLazyLoader(vector.PageLoaderFunc(func(v *vector.Vector) error {
				fillPlain(v, values)
				return nil
			}))
		default:
			if def.Type.IsVarlen() {
				fillShared(vec, values)
			} else {
				fillPlain(vec, values)
			}
		}
	}
	bat.Rows = p.Rows
	return nil
}

func (r *mockPageReader) fillDict(vec *vector.Vector, def *catalog.ColDef, values []interface{}) {
	dict, _ := r.store.Dictionary(r.table, def)
	vec.SetDictionary(dict)
	keys := vec.DictionaryVector()
	r.store.RLock()
	defer r.store.RUnlock()
	for i, v := range values {
		if v == nil {
			vec.PutNull(i)
			continue
		}
		keys.PutInt32(i, r.store.surrogate(r.table, def.Name, v.([]byte)))
	}
}

func fillPlain(vec *vector.Vector, values []interface{}) {
	for i, v := range values {
		vec.PutValue(i, v)
	}
}

func fillShared(vec *vector.Vector, values []interface{}) {
	var area []byte
	for _, v := range values {
		if v != nil {
			area = append(area, v.([]byte)...)
		}
	}
	vec.PutAllBytes(area)
	offset := 0
	for i, v := range values {
		if v == nil {
			vec.PutNull(i)
			continue
		}
		n := len(v.([]byte))
		vec.PutArray(i, offset, n)
		offset += n
	}
}

func fillComplex(vec *vector.Vector, values []interface{}) error {
	children := vec.Children()
	if vec.Type().Oid == types.T_array {
		header := make([]byte, len(values)*8)
		total := 0
		for i, v := range values {
			elems, _ := v.([]interface{})
			binary.BigEndian.PutUint32(header[i*8:], uint32(len(elems)))
			binary.BigEndian.PutUint32(header[i*8+4:], uint32(total))
			total += len(elems)
		}
		children[0].Reserve(total)
		offset := 0
		for _, v := range values {
			elems, _ := v.([]interface{})
			for _, elem := range elems {
				children[0].PutValue(offset, elem)
				offset++
			}
		}
		return vec.SetArrayChildCounts(header, len(values))
	}
	header := make([]byte, len(values)*2)
	for i, v := range values {
		fields, _ := v.([]interface{})
		if len(fields) > len(children) {
			return fmt.Errorf("%w: row %d has %d fields", vector.ErrMalformedHeader, i, len(fields))
		}
		binary.BigEndian.PutUint16(header[i*2:], uint16(len(fields)))
		for j, field := range fields {
			children[j].Reserve(len(values))
			children[j].PutValue(i, field)
		}
	}
	return vec.SetStructChildCounts(header, len(values))
}
