package options

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

func (o *Options) FillDefaults(dirname string) *Options {
	if o == nil {
		o = &Options{}
	}

	if o.StorageCfg == nil {
		o.StorageCfg = &StorageCfg{}
	}
	if o.StorageCfg.Dir == "" {
		o.StorageCfg.Dir = dirname
	}
	if o.StorageCfg.BatchSize <= 0 {
		o.StorageCfg.BatchSize = DefaultBatchSize
	}

	if o.SortCfg == nil {
		o.SortCfg = &SortCfg{}
	}
	if o.SortCfg.BufferRows <= 0 {
		o.SortCfg.BufferRows = DefaultBufferRows
	}
	if o.SortCfg.MergeFanIn < 2 {
		o.SortCfg.MergeFanIn = DefaultMergeFanIn
	}
	if o.SortCfg.MergeWorkers <= 0 {
		o.SortCfg.MergeWorkers = DefaultMergeWorkers
	}
	if o.SortCfg.TempDir == "" {
		o.SortCfg.TempDir = filepath.Join(os.TempDir(), "sibuild")
	}

	if o.SchedulerCfg == nil {
		o.SchedulerCfg = &SchedulerCfg{}
	}
	if o.SchedulerCfg.Workers <= 0 {
		o.SchedulerCfg.Workers = DefaultWorkers
	}
	if o.SchedulerCfg.TasksPerSegment <= 0 {
		o.SchedulerCfg.TasksPerSegment = DefaultTasksPerSegment
	}

	if o.LogCfg == nil {
		o.LogCfg = &LogCfg{}
	}
	if o.LogCfg.Level == "" {
		o.LogCfg.Level = DefaultLogLevel
	}
	if o.LogCfg.Format == "" {
		o.LogCfg.Format = DefaultLogFormat
	}

	return o
}

// LoadFile decodes a toml options file and fills the missing settings.
func LoadFile(path string) (*Options, error) {
	o := &Options{}
	if _, err := toml.DecodeFile(path, o); err != nil {
		return nil, err
	}
	return o.FillDefaults(filepath.Dir(path)), nil
}
