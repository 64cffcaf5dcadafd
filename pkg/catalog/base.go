package catalog

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotFound  = errors.New("sibuild: not found")
	ErrDuplicate = errors.New("sibuild: duplicate")
	ErrSchema    = errors.New("sibuild: invalid schema")
)

type BaseEntry struct {
	*sync.RWMutex
	ID uint64
}

func newBaseEntry(id uint64) *BaseEntry {
	return &BaseEntry{
		RWMutex: new(sync.RWMutex),
		ID:      id,
	}
}

func (e *BaseEntry) GetID() uint64 { return e.ID }

func (e *BaseEntry) String() string {
	return fmt.Sprintf("<%d>", e.ID)
}
