package updates

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const DeltaFileExt = ".deletedelta"

var ErrBadDeltaFileName = errors.New("sibuild: bad delete delta file name")

type DeltaFile struct {
	Path      string
	Timestamp uint64
}

func DeltaFileName(name string, ts uint64) string {
	return fmt.Sprintf("%s-%d%s", name, ts, DeltaFileExt)
}

// DeltaFileFromPath parses the timestamp out of <name>-<timestamp>.deletedelta.
func DeltaFileFromPath(path string) (f DeltaFile, err error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, DeltaFileExt) {
		err = fmt.Errorf("%w: %s", ErrBadDeltaFileName, path)
		return
	}
	base = strings.TrimSuffix(base, DeltaFileExt)
	pos := strings.LastIndexByte(base, '-')
	if pos < 0 {
		err = fmt.Errorf("%w: %s", ErrBadDeltaFileName, path)
		return
	}
	ts, perr := strconv.ParseUint(base[pos+1:], 10, 64)
	if perr != nil {
		err = fmt.Errorf("%w: %s: %v", ErrBadDeltaFileName, path, perr)
		return
	}
	f.Path = path
	f.Timestamp = ts
	return
}

// DeltaKey identifies a block's delete delta lineage. Keys with the same file
// set have the same Key.
type DeltaKey struct {
	files  []DeltaFile
	key    string
	latest uint64
}

func NewDeltaKey(files ...DeltaFile) DeltaKey {
	sorted := make([]DeltaFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	k := DeltaKey{files: sorted[:0]}
	var w strings.Builder
	for i, f := range sorted {
		if i > 0 && f.Path == sorted[i-1].Path {
			continue
		}
		k.files = append(k.files, f)
		if f.Timestamp > k.latest {
			k.latest = f.Timestamp
		}
		w.WriteString(f.Path)
		w.WriteByte(0)
	}
	k.key = w.String()
	return k
}

func (k DeltaKey) Key() string        { return k.key }
func (k DeltaKey) Latest() uint64     { return k.latest }
func (k DeltaKey) Files() []DeltaFile { return k.files }
func (k DeltaKey) IsEmpty() bool      { return len(k.files) == 0 }

func (k DeltaKey) String() string {
	return fmt.Sprintf("DeltaKey[files=%d,latest=%d]", len(k.files), k.latest)
}
