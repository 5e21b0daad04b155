package storage

import (
	"context"

	"github.com/mcoot/wordquizzle/internal/model"
)

// SnapshotStore persists registry snapshots. SaveSnapshot must replace the
// previous snapshot atomically: on failure the previous one stays readable.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot *model.Snapshot) error

	// LoadSnapshot returns model.ErrNoSnapshot if nothing was ever saved
	LoadSnapshot(ctx context.Context) (*model.Snapshot, error)
}
