// Package file stores registry snapshots as a JSON document on local disk.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/storage"
)

// Storage writes snapshots to Path through a temp file in the same
// directory and an atomic rename, so Path always holds a complete snapshot.
type Storage struct {
	path  string
	mu    sync.Mutex
	write func(path string, r io.Reader) error
}

// New creates a file storage writing to path
func New(path string) *Storage {
	return &Storage{path: path, write: atomic.WriteFile}
}

// Ensure Storage implements the interface
var _ storage.SnapshotStore = (*Storage)(nil)

// Path returns the durable snapshot location
func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	if err := s.write(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot %s: %w", s.path, err)
	}
	return nil
}

func (s *Storage) LoadSnapshot(ctx context.Context) (*model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.ErrNoSnapshot
		}
		return nil, err
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.path, err)
	}
	if snapshot.Version != model.SnapshotVersion {
		return nil, fmt.Errorf("snapshot %s: unsupported version %d", s.path, snapshot.Version)
	}
	return &snapshot, nil
}
