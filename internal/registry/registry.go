// Package registry owns the user records, the friendship graph and the
// pending challenge table. It is the only component allowed to mutate them;
// everything else goes through its operations.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordquizzle/internal/dependencies/clock"
	"github.com/mcoot/wordquizzle/internal/match"
	"github.com/mcoot/wordquizzle/internal/model"
)

// Config holds registry settings
type Config struct {
	// DefaultUDPPort is used when a client logs in without a UDP port
	DefaultUDPPort uint16

	// ChallengeTimeout bounds the time between CHALLENGE and CHALLENGE_OK
	ChallengeTimeout time.Duration

	// ChallengeRetention is how long an unanswered challenge is kept before
	// it is purged. Must be longer than ChallengeTimeout so that late
	// answers get a timeout rather than an unknown challenge.
	ChallengeRetention time.Duration

	// BcryptCost is the password hashing cost
	BcryptCost int
}

// DefaultConfig returns the default registry configuration
func DefaultConfig() Config {
	return Config{
		DefaultUDPPort:     1921,
		ChallengeTimeout:   10 * time.Second,
		ChallengeRetention: time.Minute,
		BcryptCost:         bcrypt.DefaultCost,
	}
}

// record is the live user entry. Every field of user is guarded by mu.
type record struct {
	mu   sync.Mutex
	user model.User
	// session identifies the connection that owns the live login
	session string
}

// Registry is the user database
type Registry struct {
	engine match.Engine
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger

	// users maps name to *record. Lookups never take a registry-wide lock.
	users sync.Map

	// registerMu serializes id allocation; order is indexed by UserID
	registerMu sync.Mutex
	order      []*record

	graph      *friendGraph
	challenges *challengeTable
}

// New creates an empty registry
func New(engine match.Engine, clock clock.Clock, cfg Config, logger *slog.Logger) *Registry {
	return &Registry{
		engine:     engine,
		clock:      clock,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "registry")),
		graph:      newFriendGraph(),
		challenges: newChallengeTable(),
	}
}

// Config returns the registry configuration
func (r *Registry) Config() Config {
	return r.cfg
}

func (r *Registry) lookup(name string) (*record, error) {
	v, ok := r.users.Load(name)
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return v.(*record), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	return strings.IndexFunc(name, unicode.IsSpace) < 0
}

// Register creates a user with the next id and an empty friend list
func (r *Registry) Register(ctx context.Context, name, password string) (model.User, error) {
	if !validName(name) {
		return model.User{}, model.ErrMalformedRequest
	}
	if _, ok := r.users.Load(name); ok {
		return model.User{}, model.ErrAlreadyRegistered
	}
	if strings.TrimSpace(password) == "" {
		return model.User{}, model.ErrInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cfg.BcryptCost)
	if err != nil {
		return model.User{}, err
	}

	r.registerMu.Lock()
	defer r.registerMu.Unlock()

	if _, ok := r.users.Load(name); ok {
		return model.User{}, model.ErrAlreadyRegistered
	}

	rec := &record{user: model.User{
		ID:             model.UserID(len(r.order)),
		Name:           name,
		PasswordHash:   string(hash),
		PendingMatches: []model.MatchID{},
		DoneMatches:    []model.MatchID{},
	}}
	created := rec.user
	r.graph.add(name)
	r.order = append(r.order, rec)
	r.users.Store(name, rec)

	r.logger.Info("user registered",
		slog.String("user", name),
		slog.Int("user_id", int(created.ID)),
	)
	return created, nil
}

// Login records the live endpoint of the user. The endpoint address is the
// client's IP with the UDP port it listens for challenges on.
func (r *Registry) Login(ctx context.Context, name, password string, addr netip.Addr, udpPort uint16) error {
	return r.LoginSession(ctx, "", name, password, addr, udpPort)
}

// LoginSession is Login on behalf of a connection. Only that session can
// later end the login through EndSession.
func (r *Registry) LoginSession(ctx context.Context, session, name, password string, addr netip.Addr, udpPort uint16) error {
	rec, err := r.lookup(name)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.user.Online() {
		return model.ErrAlreadyLogged
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return model.ErrInvalidPassword
		}
		return err
	}

	rec.user.Endpoint = netip.AddrPortFrom(addr.Unmap(), udpPort)
	rec.session = session
	r.logger.Info("user logged in",
		slog.String("user", name),
		slog.String("endpoint", rec.user.Endpoint.String()),
	)
	return nil
}

// LoginDefaultPort logs in with the default UDP port
func (r *Registry) LoginDefaultPort(ctx context.Context, name, password string, addr netip.Addr) error {
	return r.Login(ctx, name, password, addr, r.cfg.DefaultUDPPort)
}

// Logout clears the live endpoint. Logging out an offline user is a no-op.
func (r *Registry) Logout(ctx context.Context, name string) error {
	rec, err := r.lookup(name)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	wasOnline := rec.user.Online()
	rec.user.Endpoint = model.Endpoint{}
	rec.session = ""
	rec.mu.Unlock()

	if wasOnline {
		r.logger.Info("user logged out", slog.String("user", name))
	}
	return nil
}

// EndSession logs the user out only while the login still belongs to
// session. It reports whether it did.
func (r *Registry) EndSession(ctx context.Context, name, session string) (bool, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return false, err
	}

	rec.mu.Lock()
	owned := rec.user.Online() && rec.session == session
	if owned {
		rec.user.Endpoint = model.Endpoint{}
		rec.session = ""
	}
	rec.mu.Unlock()

	if owned {
		r.logger.Info("user session ended", slog.String("user", name))
	}
	return owned, nil
}

// endpointOf returns the user's endpoint, or ErrNotLoggedIn
func (rec *record) endpointOf() (model.Endpoint, error) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.user.Online() {
		return model.Endpoint{}, model.ErrNotLoggedIn
	}
	return rec.user.Endpoint, nil
}

// UserInfo returns a copy of the user record with its score settled
func (r *Registry) UserInfo(ctx context.Context, name string) (model.User, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return model.User{}, err
	}
	if _, err := r.settle(ctx, rec); err != nil {
		return model.User{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	u := rec.user
	u.PendingMatches = append([]model.MatchID{}, rec.user.PendingMatches...)
	u.DoneMatches = append([]model.MatchID{}, rec.user.DoneMatches...)
	return u, nil
}

// Stats is a point-in-time summary of the registry
type Stats struct {
	Registered        int `json:"registered"`
	Online            int `json:"online"`
	PendingChallenges int `json:"pending_challenges"`
}

// Stats counts registered and online users and open challenges
func (r *Registry) Stats() Stats {
	r.registerMu.Lock()
	records := append([]*record(nil), r.order...)
	r.registerMu.Unlock()

	stats := Stats{
		Registered:        len(records),
		PendingChallenges: r.challenges.len(),
	}
	for _, rec := range records {
		rec.mu.Lock()
		if rec.user.Online() {
			stats.Online++
		}
		rec.mu.Unlock()
	}
	return stats
}
