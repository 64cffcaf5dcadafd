package options

const (
	DefaultBatchSize = 4096

	DefaultBufferRows   = 100000
	DefaultMergeFanIn   = 16
	DefaultMergeWorkers = 2

	DefaultWorkers         = 4
	DefaultTasksPerSegment = 1

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

type Options struct {
	StorageCfg   *StorageCfg   `toml:"storage"`
	SortCfg      *SortCfg      `toml:"sort"`
	SchedulerCfg *SchedulerCfg `toml:"scheduler"`
	LogCfg       *LogCfg       `toml:"log"`
}

type StorageCfg struct {
	// Dir holds the catalog's segment and index directories.
	Dir       string `toml:"dir"`
	BatchSize int    `toml:"batch-size"`
}

type SortCfg struct {
	BufferRows   int    `toml:"buffer-rows"`
	MergeFanIn   int    `toml:"merge-fan-in"`
	MergeWorkers int    `toml:"merge-workers"`
	TempDir      string `toml:"temp-dir"`
}

type SchedulerCfg struct {
	Workers         int `toml:"workers"`
	TasksPerSegment int `toml:"tasks-per-segment"`
}

type LogCfg struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Filename   string `toml:"filename"`
	MaxSize    int    `toml:"max-size"`
	MaxDays    int    `toml:"max-days"`
	MaxBackups int    `toml:"max-backups"`
}
