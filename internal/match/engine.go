// Package match defines the contract between the server core and the quiz
// match engine, and provides an in-memory engine implementing it.
package match

import (
	"context"

	"github.com/mcoot/wordquizzle/internal/model"
)

// Engine runs word selection, translation checking and scoring for matches.
//
// CheckTranslation fails with model.ErrUnknownUsername, model.ErrGameTimeout
// or model.ErrEndOfMatch; the recap for the last two is available from Recap.
// SettlementDelta fails with model.ErrUnknownUsername.
type Engine interface {
	CreateMatch(ctx context.Context, playerA, playerB string) (model.MatchID, error)
	NextWord(ctx context.Context, id model.MatchID, player string) (string, error)
	CheckTranslation(ctx context.Context, id model.MatchID, player, submitted string) (string, error)
	IsFinished(ctx context.Context, id model.MatchID) (bool, error)
	SettlementDelta(ctx context.Context, id model.MatchID, player string) (int, error)
	Recap(ctx context.Context, id model.MatchID) (string, error)
}

// IDSeeder is implemented by engines whose match ids restart from zero with
// the process. SeedIDs makes every later CreateMatch return an id above last.
type IDSeeder interface {
	SeedIDs(last model.MatchID)
}
