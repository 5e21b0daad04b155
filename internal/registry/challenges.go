package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/wordquizzle/internal/dependencies/clock"
	"github.com/mcoot/wordquizzle/internal/model"
)

// challengeTable holds pending challenges keyed by the challenged endpoint.
// Each entry is removed by exactly one take.
type challengeTable struct {
	mu      sync.Mutex
	pending map[model.Endpoint]model.PendingChallenge
}

func newChallengeTable() *challengeTable {
	return &challengeTable{pending: make(map[model.Endpoint]model.PendingChallenge)}
}

// put stores c and returns the challenge it replaced, if any
func (t *challengeTable) put(c model.PendingChallenge) (model.PendingChallenge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.pending[c.ChallengedEndpoint]
	t.pending[c.ChallengedEndpoint] = c
	return old, ok
}

func (t *challengeTable) take(at model.Endpoint) (model.PendingChallenge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.pending[at]
	if ok {
		delete(t.pending, at)
	}
	return c, ok
}

func (t *challengeTable) expire(before time.Time) []model.PendingChallenge {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []model.PendingChallenge
	for at, c := range t.pending {
		if c.RequestedAt.Before(before) {
			expired = append(expired, c)
			delete(t.pending, at)
		}
	}
	return expired
}

func (t *challengeTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// RecordChallenge validates a challenge from challenger to challenged and
// stores it until the challenged user answers. from is the endpoint the
// challenge was sent from. A newer challenge to the same endpoint replaces
// the older one.
func (r *Registry) RecordChallenge(ctx context.Context, challenger, challenged string, from model.Endpoint) (model.PendingChallenge, error) {
	if challenger == challenged {
		return model.PendingChallenge{}, model.ErrSameUser
	}
	recChallenger, err := r.lookup(challenger)
	if err != nil {
		return model.PendingChallenge{}, err
	}
	recChallenged, err := r.lookup(challenged)
	if err != nil {
		return model.PendingChallenge{}, err
	}
	if _, err := recChallenger.endpointOf(); err != nil {
		return model.PendingChallenge{}, err
	}
	target, err := recChallenged.endpointOf()
	if err != nil {
		return model.PendingChallenge{}, err
	}
	if !r.graph.areFriends(challenger, challenged) {
		return model.PendingChallenge{}, model.ErrNotFriends
	}

	c := model.PendingChallenge{
		Challenger:         challenger,
		Challenged:         challenged,
		ChallengerEndpoint: from,
		ChallengedEndpoint: target,
		RequestedAt:        r.clock.Now(),
	}
	if old, replaced := r.challenges.put(c); replaced {
		r.logger.Info("pending challenge replaced",
			slog.String("challenger", old.Challenger),
			slog.String("challenged", old.Challenged),
		)
	}
	return c, nil
}

// ResolveChallenge consumes the challenge pending at the challenged
// endpoint. An answer after the timeout yields ErrChallengeTimeout together
// with the consumed challenge so both parties can be told. On success a
// match is created and appended to both users' pending matches.
func (r *Registry) ResolveChallenge(ctx context.Context, at model.Endpoint) (model.ChallengeOutcome, error) {
	c, ok := r.challenges.take(at)
	if !ok {
		return model.ChallengeOutcome{}, model.ErrUnknownChallenge
	}
	outcome := model.ChallengeOutcome{Challenge: c}

	if clock.Since(r.clock, c.RequestedAt) > r.cfg.ChallengeTimeout {
		return outcome, model.ErrChallengeTimeout
	}

	id, err := r.engine.CreateMatch(ctx, c.Challenger, c.Challenged)
	if err != nil {
		return outcome, err
	}
	outcome.MatchID = id

	for _, name := range []string{c.Challenger, c.Challenged} {
		rec, err := r.lookup(name)
		if err != nil {
			return outcome, err
		}
		rec.mu.Lock()
		rec.user.PendingMatches = append(rec.user.PendingMatches, id)
		rec.mu.Unlock()
	}

	r.logger.Info("challenge accepted",
		slog.String("challenger", c.Challenger),
		slog.String("challenged", c.Challenged),
		slog.Int("match_id", int(id)),
	)
	return outcome, nil
}

// DiscardChallenge consumes the challenge pending at the challenged endpoint
// without creating a match
func (r *Registry) DiscardChallenge(ctx context.Context, at model.Endpoint) (model.PendingChallenge, error) {
	c, ok := r.challenges.take(at)
	if !ok {
		return model.PendingChallenge{}, model.ErrUnknownChallenge
	}
	return c, nil
}

// ExpireChallenges drops challenges older than the retention window and
// returns how many were dropped
func (r *Registry) ExpireChallenges(now time.Time) int {
	expired := r.challenges.expire(now.Add(-r.cfg.ChallengeRetention))
	for _, c := range expired {
		r.logger.Debug("pending challenge expired",
			slog.String("challenger", c.Challenger),
			slog.String("challenged", c.Challenged),
		)
	}
	return len(expired)
}
