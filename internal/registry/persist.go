package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mcoot/wordquizzle/internal/match"
	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/storage"
)

// Snapshot copies every user and the friendship graph. Live endpoints are
// left out.
func (r *Registry) Snapshot() *model.Snapshot {
	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	snap := &model.Snapshot{
		Version: model.SnapshotVersion,
		SavedAt: r.clock.Now(),
		Users:   make([]model.SnapshotUser, 0, len(r.order)),
		Friends: make(map[model.UserID][]model.UserID, len(r.order)),
	}

	ids := make(map[string]model.UserID, len(r.order))
	for _, rec := range r.order {
		rec.mu.Lock()
		snap.Users = append(snap.Users, model.SnapshotUser{
			ID:             rec.user.ID,
			Name:           rec.user.Name,
			PasswordHash:   rec.user.PasswordHash,
			Score:          rec.user.Score,
			PendingMatches: slices.Clone(rec.user.PendingMatches),
			DoneMatches:    slices.Clone(rec.user.DoneMatches),
		})
		ids[rec.user.Name] = rec.user.ID
		rec.mu.Unlock()
	}

	for _, u := range snap.Users {
		friends := r.graph.friends(u.Name)
		adj := make([]model.UserID, 0, len(friends))
		for _, f := range friends {
			adj = append(adj, ids[f])
		}
		snap.Friends[u.ID] = adj
	}
	return snap
}

// Restore loads a snapshot into an empty registry. Every restored user is
// logged out.
func (r *Registry) Restore(snap *model.Snapshot) error {
	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	if len(r.order) > 0 {
		return errors.New("restore: registry is not empty")
	}

	users := slices.Clone(snap.Users)
	slices.SortFunc(users, func(a, b model.SnapshotUser) int { return int(a.ID) - int(b.ID) })

	names := make(map[model.UserID]string, len(users))
	for i, u := range users {
		if int(u.ID) != i {
			return fmt.Errorf("restore: user ids are not dense at %q (id %d)", u.Name, u.ID)
		}
		if _, dup := names[u.ID]; dup {
			return fmt.Errorf("restore: duplicate user id %d", u.ID)
		}
		names[u.ID] = u.Name
	}

	for _, u := range users {
		rec := &record{user: model.User{
			ID:             u.ID,
			Name:           u.Name,
			PasswordHash:   u.PasswordHash,
			Score:          max(0, u.Score),
			PendingMatches: append([]model.MatchID{}, u.PendingMatches...),
			DoneMatches:    append([]model.MatchID{}, u.DoneMatches...),
		}}
		if _, loaded := r.users.LoadOrStore(u.Name, rec); loaded {
			return fmt.Errorf("restore: duplicate user name %q", u.Name)
		}
		r.graph.add(u.Name)
		r.order = append(r.order, rec)
	}

	for _, u := range users {
		adj := snap.Friends[u.ID]
		friends := make([]string, 0, len(adj))
		seen := make(map[model.UserID]struct{}, len(adj))
		for _, friendID := range adj {
			friend, ok := names[friendID]
			if !ok || friendID == u.ID {
				return fmt.Errorf("restore: invalid friend id %d for %q", friendID, u.Name)
			}
			if _, dup := seen[friendID]; dup {
				return fmt.Errorf("restore: duplicate friend id %d for %q", friendID, u.Name)
			}
			if !slices.Contains(snap.Friends[friendID], u.ID) {
				return fmt.Errorf("restore: friendship %q -> %q is not symmetric", u.Name, friend)
			}
			seen[friendID] = struct{}{}
			friends = append(friends, friend)
		}
		r.graph.restore(u.Name, friends)
	}

	r.logger.Info("registry restored", slog.Int("users", len(users)))
	return nil
}

// Persister periodically writes registry snapshots to a store
type Persister struct {
	registry *Registry
	store    storage.SnapshotStore
	interval time.Duration
	logger   *slog.Logger
}

// NewPersister creates a persister saving every interval
func NewPersister(registry *Registry, store storage.SnapshotStore, interval time.Duration, logger *slog.Logger) *Persister {
	return &Persister{
		registry: registry,
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "persister")),
	}
}

// Save writes one snapshot
func (p *Persister) Save(ctx context.Context) error {
	snap := p.registry.Snapshot()
	if err := p.store.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	p.logger.Debug("snapshot saved", slog.Int("users", len(snap.Users)))
	return nil
}

// Run saves on every tick until ctx is cancelled, then saves once more.
// Failed saves are logged; the previous snapshot stays in place.
func (p *Persister) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Save(ctx); err != nil {
				p.logger.Error("periodic snapshot failed", slog.String("error", err.Error()))
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := p.Save(finalCtx); err != nil {
				p.logger.Error("final snapshot failed", slog.String("error", err.Error()))
				return err
			}
			p.logger.Info("final snapshot saved")
			return nil
		}
	}
}

// Load restores the registry from the store and moves the engine's match ids
// past every id the snapshot refers to. It returns false if the store holds
// no snapshot yet.
func Load(ctx context.Context, r *Registry, store storage.SnapshotStore) (bool, error) {
	snap, err := store.LoadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoSnapshot) {
			return false, nil
		}
		return false, err
	}
	if err := r.Restore(snap); err != nil {
		return false, err
	}
	if seeder, ok := r.engine.(match.IDSeeder); ok {
		seeder.SeedIDs(snap.HighestMatchID())
	}
	return true, nil
}
