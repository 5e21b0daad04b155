package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/mcoot/wordquizzle/internal/model"
)

// ScoreOf settles every finished pending match of the user and returns the
// updated score
func (r *Registry) ScoreOf(ctx context.Context, name string) (int, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return 0, err
	}
	return r.settle(ctx, rec)
}

// RankingOf returns the user and their friends ordered by descending score.
// Ties keep friendship order with the user first.
func (r *Registry) RankingOf(ctx context.Context, name string) ([]model.RankingEntry, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	score, err := r.settle(ctx, rec)
	if err != nil {
		return nil, err
	}
	ranking := []model.RankingEntry{{Name: name, Score: score}}

	for _, friend := range r.graph.friends(name) {
		frec, err := r.lookup(friend)
		if err != nil {
			return nil, err
		}
		score, err := r.settle(ctx, frec)
		if err != nil {
			return nil, err
		}
		ranking = append(ranking, model.RankingEntry{Name: friend, Score: score})
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Score > ranking[j].Score
	})
	return ranking, nil
}

// settle folds the settlement delta of every finished pending match into the
// score. The engine is queried without holding the record lock; a match is
// only applied by the caller that removes it from the pending list, so
// concurrent readers settle each match once.
func (r *Registry) settle(ctx context.Context, rec *record) (int, error) {
	rec.mu.Lock()
	name := rec.user.Name
	pending := slices.Clone(rec.user.PendingMatches)
	rec.mu.Unlock()

	for _, id := range pending {
		delta, err := r.finishedDelta(ctx, id, name)
		if err != nil {
			return 0, err
		}
		if delta == nil {
			continue
		}

		rec.mu.Lock()
		if i := slices.Index(rec.user.PendingMatches, id); i >= 0 {
			rec.user.PendingMatches = slices.Delete(rec.user.PendingMatches, i, i+1)
			rec.user.DoneMatches = append(rec.user.DoneMatches, id)
			rec.user.Score = max(0, rec.user.Score+*delta)
			r.logger.Debug("match settled",
				slog.String("user", name),
				slog.Int("match_id", int(id)),
				slog.Int("delta", *delta),
				slog.Int("score", rec.user.Score),
			)
		}
		rec.mu.Unlock()
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.user.Score, nil
}

// finishedDelta returns nil while the match is still running. A match the
// engine no longer knows, or one that does not include the user, is settled
// with no score change.
func (r *Registry) finishedDelta(ctx context.Context, id model.MatchID, name string) (*int, error) {
	finished, err := r.engine.IsFinished(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrMatchNotFound) {
			r.logger.Warn("dropping unknown match",
				slog.String("user", name),
				slog.Int("match_id", int(id)),
			)
			zero := 0
			return &zero, nil
		}
		return nil, fmt.Errorf("match %d: %w", id, err)
	}
	if !finished {
		return nil, nil
	}

	delta, err := r.engine.SettlementDelta(ctx, id, name)
	switch {
	case errors.Is(err, model.ErrUnknownUsername):
		// the id was reused for a match this user never played
		r.logger.Warn("dropping match without the user",
			slog.String("user", name),
			slog.Int("match_id", int(id)),
		)
		delta = 0
	case err != nil:
		return nil, fmt.Errorf("match %d: %w", id, err)
	}
	return &delta, nil
}
