package scan

import (
	"fmt"
	"time"

	"sibuild/pkg/stats"
)

type Statistics struct {
	Blocks           int
	TotalBlocklets   int
	ValidBlocklets   int
	ScannedBlocklets int
	TotalPages       int
	ValidPages       int
	ScannedPages     int
	RowsScanned      int
	RowsDeleted      int
	ReadTime         time.Duration
	ScanTime         time.Duration
}

func (s *Statistics) flush(recorder stats.Recorder) {
	recorder.BlocksScanned(s.Blocks)
	recorder.BlocksPruned(s.TotalBlocklets - s.ValidBlocklets)
	recorder.PagesScanned(s.ScannedPages)
	recorder.RowsScanned(s.RowsScanned)
	recorder.RowsDeleted(s.RowsDeleted)
}

func (s *Statistics) String() string {
	return fmt.Sprintf("blocks=%d,blocklets=%d/%d/%d,pages=%d/%d/%d,rows=%d,deleted=%d,read=%s,scan=%s",
		s.Blocks, s.ScannedBlocklets, s.ValidBlocklets, s.TotalBlocklets,
		s.ValidPages, s.ScannedPages, s.TotalPages,
		s.RowsScanned, s.RowsDeleted, s.ReadTime, s.ScanTime)
}
