package db

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"sibuild/pkg/catalog"
	"sibuild/pkg/common"
	"sibuild/pkg/iface/data"
	"sibuild/pkg/logutil"
	"sibuild/pkg/options"
	"sibuild/pkg/rebuild"
	"sibuild/pkg/stats"
	"sibuild/pkg/updates"
)

var ErrClosed = errors.New("sibuild: db closed")

// Storage is what a DB reads table data through.
type Storage interface {
	data.PageReaderFactory
	data.DictionaryService
}

type DB struct {
	Opts      *options.Options
	Catalog   *catalog.Catalog
	Metrics   *stats.Metrics
	Cache     *updates.Cache
	Rebuilder *rebuild.Rebuilder
	closed    bool
}

// Open sets up logging, the catalog and the rebuilder rooted at dirname.
// Metrics are registered with reg when it is not nil.
func Open(dirname string, opts *options.Options, storage Storage, reg prometheus.Registerer) (db *DB, err error) {
	opts = opts.FillDefaults(dirname)
	if err = logutil.Setup(opts.LogCfg); err != nil {
		return
	}
	db = &DB{
		Opts:    opts,
		Catalog: catalog.NewCatalog(opts.StorageCfg.Dir),
		Metrics: stats.NewMetrics(reg),
	}
	db.Cache = updates.NewCache(updates.FileDeltaReader{}, db.Metrics)
	if db.Rebuilder, err = rebuild.NewRebuilder(opts, db.Catalog, rebuild.Deps{
		Readers:      storage,
		Dictionaries: storage,
		Cache:        db.Cache,
		Recorder:     db.Metrics,
	}); err != nil {
		return nil, err
	}
	logrus.Infof("Open db at %s", opts.StorageCfg.Dir)
	return
}

// OpenFile opens a DB configured by a toml file.
func OpenFile(path string, storage Storage, reg prometheus.Registerer) (*DB, error) {
	opts, err := options.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Open(opts.StorageCfg.Dir, opts, storage, reg)
}

func (db *DB) CreateTable(desc *CreateTableDesc) (uint64, error) {
	if db.closed {
		return 0, ErrClosed
	}
	entry, err := db.Catalog.CreateTable(desc.Schema)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func (db *DB) CreateIndex(desc *CreateIndexDesc) (uint64, error) {
	if db.closed {
		return 0, ErrClosed
	}
	table, err := db.Catalog.GetTableByName(desc.Table)
	if err != nil {
		return 0, err
	}
	entry, err := table.CreateIndex(desc.Name, desc.Columns...)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

func (db *DB) RebuildIndex(ctx context.Context, desc *RebuildDesc) (*rebuild.Result, error) {
	if db.closed {
		return nil, ErrClosed
	}
	return db.Rebuilder.Rebuild(ctx, desc.Table, desc.Index)
}

func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	db.Rebuilder.Close()
	logrus.Debug(db.Catalog.PPString(common.PPL1, 0, ""))
	return nil
}
