package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcoot/wordquizzle/internal/model"
)

type playerKey struct {
	id   model.MatchID
	name string
}

type fakeMatch struct {
	players  [2]string
	finished bool
	deltas   map[string]int
}

// MatchEngine is a programmable match engine for testing.
// Words and canonical translations default to "word-<n>" and
// "translation-<n>" where n counts the player's checked answers.
type MatchEngine struct {
	mu      sync.Mutex
	lastID  model.MatchID
	matches map[model.MatchID]*fakeMatch
	answers map[playerKey]int
	errs    map[playerKey]error
	wordErr map[playerKey]error

	// CreateErr is returned by CreateMatch when set
	CreateErr error
	// DeltaErr is returned by SettlementDelta when set
	DeltaErr error
	// DeltaCalls counts SettlementDelta calls
	DeltaCalls int
}

// NewMatchEngine creates an empty MatchEngine
func NewMatchEngine() *MatchEngine {
	return &MatchEngine{
		matches: make(map[model.MatchID]*fakeMatch),
		answers: make(map[playerKey]int),
		errs:    make(map[playerKey]error),
		wordErr: make(map[playerKey]error),
	}
}

// SeedIDs raises the id counter to at least last
func (e *MatchEngine) SeedIDs(last model.MatchID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastID = max(e.lastID, last)
}

func (e *MatchEngine) CreateMatch(ctx context.Context, playerA, playerB string) (model.MatchID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CreateErr != nil {
		return 0, e.CreateErr
	}
	e.lastID++
	e.matches[e.lastID] = &fakeMatch{
		players: [2]string{playerA, playerB},
		deltas:  make(map[string]int),
	}
	return e.lastID, nil
}

func (e *MatchEngine) NextWord(ctx context.Context, id model.MatchID, player string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, err := e.player(id, player)
	if err != nil {
		return "", err
	}
	if err := e.errs[key]; err != nil {
		return "", err
	}
	if err := e.wordErr[key]; err != nil {
		return "", err
	}
	return fmt.Sprintf("word-%d", e.answers[key]), nil
}

func (e *MatchEngine) CheckTranslation(ctx context.Context, id model.MatchID, player, submitted string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, err := e.player(id, player)
	if err != nil {
		return "", err
	}
	if err := e.errs[key]; err != nil {
		return "", err
	}
	canonical := fmt.Sprintf("translation-%d", e.answers[key])
	e.answers[key]++
	return canonical, nil
}

func (e *MatchEngine) IsFinished(ctx context.Context, id model.MatchID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[id]
	if !ok {
		return false, model.ErrMatchNotFound
	}
	return m.finished, nil
}

func (e *MatchEngine) SettlementDelta(ctx context.Context, id model.MatchID, player string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DeltaCalls++
	if e.DeltaErr != nil {
		return 0, e.DeltaErr
	}
	if _, err := e.player(id, player); err != nil {
		return 0, err
	}
	return e.matches[id].deltas[player], nil
}

func (e *MatchEngine) Recap(ctx context.Context, id model.MatchID) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.matches[id]; !ok {
		return "", model.ErrMatchNotFound
	}
	return fmt.Sprintf("RECAP %d", id), nil
}

// Finish marks the match finished and sets each player's settlement delta
func (e *MatchEngine) Finish(id model.MatchID, deltas map[string]int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[id]
	if !ok {
		return
	}
	m.finished = true
	for name, d := range deltas {
		m.deltas[name] = d
	}
}

// FailPlayer makes NextWord and CheckTranslation fail with err for the player
func (e *MatchEngine) FailPlayer(id model.MatchID, player string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[playerKey{id, player}] = err
}

// FailNextWord makes only NextWord fail with err for the player
func (e *MatchEngine) FailNextWord(id model.MatchID, player string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wordErr[playerKey{id, player}] = err
}

// Players returns the players of a created match
func (e *MatchEngine) Players(id model.MatchID) (string, string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[id]
	if !ok {
		return "", "", false
	}
	return m.players[0], m.players[1], true
}

// MatchCount returns the number of matches created
func (e *MatchEngine) MatchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.matches)
}

func (e *MatchEngine) player(id model.MatchID, player string) (playerKey, error) {
	m, ok := e.matches[id]
	if !ok {
		return playerKey{}, model.ErrMatchNotFound
	}
	if m.players[0] != player && m.players[1] != player {
		return playerKey{}, model.ErrUnknownUsername
	}
	return playerKey{id, player}, nil
}
