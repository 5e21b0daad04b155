package memory

import (
	"context"
	"sync"

	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/storage"
)

// Storage is an in-memory snapshot store
type Storage struct {
	mu       sync.RWMutex
	snapshot *model.Snapshot
	saves    int
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{}
}

// Ensure Storage implements the interface
var _ storage.SnapshotStore = (*Storage)(nil)

func (s *Storage) SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	clone := snapshot.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = clone
	s.saves++
	return nil
}

func (s *Storage) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, model.ErrNoSnapshot
	}
	return s.snapshot.Clone(), nil
}

// Saves returns how many snapshots were written
func (s *Storage) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
