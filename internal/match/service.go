package match

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcoot/wordquizzle/internal/dependencies/clock"
	"github.com/mcoot/wordquizzle/internal/dependencies/random"
	"github.com/mcoot/wordquizzle/internal/model"
)

const (
	pointsCorrect = 2
	pointsWrong   = -1
	winnerBonus   = 3
)

// Config holds tunables for the reference engine
type Config struct {
	WordsPerMatch int
	Duration      time.Duration
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		WordsPerMatch: 5,
		Duration:      60 * time.Second,
	}
}

type progress struct {
	name    string
	next    int
	correct int
	wrong   int
	points  int
}

type quiz struct {
	id        model.MatchID
	words     []Pair
	startedAt time.Time
	players   [2]*progress
}

func (q *quiz) player(name string) *progress {
	for _, p := range q.players {
		if p.name == name {
			return p
		}
	}
	return nil
}

func (q *quiz) opponent(p *progress) *progress {
	if q.players[0] == p {
		return q.players[1]
	}
	return q.players[0]
}

// Service is an in-memory Engine. Matches are kept for the process lifetime.
type Service struct {
	config     Config
	dictionary *Dictionary
	clock      clock.Clock
	random     random.Random
	logger     *slog.Logger

	lastID  atomic.Int64
	mu      sync.Mutex
	matches map[model.MatchID]*quiz
}

var _ Engine = (*Service)(nil)

// NewService creates a new reference engine
func NewService(
	config Config,
	dictionary *Dictionary,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Service {
	return &Service{
		config:     config,
		dictionary: dictionary,
		clock:      clock,
		random:     random,
		logger:     logger,
		matches:    make(map[model.MatchID]*quiz),
	}
}

// SeedIDs raises the id counter to at least last
func (s *Service) SeedIDs(last model.MatchID) {
	for {
		cur := s.lastID.Load()
		if cur >= int64(last) || s.lastID.CompareAndSwap(cur, int64(last)) {
			return
		}
	}
}

// CreateMatch starts a match between two players
func (s *Service) CreateMatch(ctx context.Context, playerA, playerB string) (model.MatchID, error) {
	if playerA == playerB {
		return 0, model.ErrSameUser
	}
	n := s.dictionary.Len()
	if n == 0 {
		return 0, fmt.Errorf("create match: dictionary is empty")
	}

	idx := s.random.Pick(n, s.config.WordsPerMatch)
	words := make([]Pair, len(idx))
	for i, j := range idx {
		words[i] = s.dictionary.At(j)
	}

	q := &quiz{
		id:        model.MatchID(s.lastID.Add(1)),
		words:     words,
		startedAt: s.clock.Now(),
		players:   [2]*progress{{name: playerA}, {name: playerB}},
	}

	s.mu.Lock()
	s.matches[q.id] = q
	s.mu.Unlock()

	s.logger.Info("match created",
		slog.Int("match_id", int(q.id)),
		slog.String("player_a", playerA),
		slog.String("player_b", playerB),
		slog.Int("words", len(words)),
	)
	return q.id, nil
}

// NextWord returns the word the player has to translate next
func (s *Service) NextWord(ctx context.Context, id model.MatchID, player string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, p, err := s.lookup(id, player)
	if err != nil {
		return "", err
	}
	if err := s.checkRunning(q, p); err != nil {
		return "", err
	}
	return q.words[p.next].Source, nil
}

// CheckTranslation scores the submitted translation of the player's current
// word, advances the player and returns the canonical translation.
func (s *Service) CheckTranslation(ctx context.Context, id model.MatchID, player, submitted string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, p, err := s.lookup(id, player)
	if err != nil {
		return "", err
	}
	if err := s.checkRunning(q, p); err != nil {
		return "", err
	}

	canonical := q.words[p.next].Target
	if strings.EqualFold(strings.TrimSpace(submitted), canonical) {
		p.correct++
		p.points += pointsCorrect
	} else {
		p.wrong++
		p.points += pointsWrong
	}
	p.next++
	return canonical, nil
}

// IsFinished reports whether both players answered every word or the match
// ran out of time
func (s *Service) IsFinished(ctx context.Context, id model.MatchID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.matches[id]
	if !ok {
		return false, model.ErrMatchNotFound
	}
	return s.finished(q), nil
}

// SettlementDelta returns the score change the match awards the player
func (s *Service) SettlementDelta(ctx context.Context, id model.MatchID, player string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, p, err := s.lookup(id, player)
	if err != nil {
		return 0, err
	}
	delta := p.points
	if p.points > q.opponent(p).points {
		delta += winnerBonus
	}
	return delta, nil
}

// Recap summarizes the match, one line per player
func (s *Service) Recap(ctx context.Context, id model.MatchID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.matches[id]
	if !ok {
		return "", model.ErrMatchNotFound
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH %d", q.id)
	for _, p := range q.players {
		fmt.Fprintf(&b, "\n%s %d correct %d wrong %d unanswered %d points",
			p.name, p.correct, p.wrong, len(q.words)-p.next, p.points)
	}
	return b.String(), nil
}

func (s *Service) lookup(id model.MatchID, player string) (*quiz, *progress, error) {
	q, ok := s.matches[id]
	if !ok {
		return nil, nil, model.ErrMatchNotFound
	}
	p := q.player(player)
	if p == nil {
		return nil, nil, model.ErrUnknownUsername
	}
	return q, p, nil
}

func (s *Service) checkRunning(q *quiz, p *progress) error {
	if p.next >= len(q.words) {
		return model.ErrEndOfMatch
	}
	if s.expired(q) {
		return model.ErrGameTimeout
	}
	return nil
}

func (s *Service) expired(q *quiz) bool {
	return clock.Since(s.clock, q.startedAt) >= s.config.Duration
}

func (s *Service) finished(q *quiz) bool {
	if s.expired(q) {
		return true
	}
	for _, p := range q.players {
		if p.next < len(q.words) {
			return false
		}
	}
	return true
}
