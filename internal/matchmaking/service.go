// Package matchmaking runs the UDP challenge handshake. A single goroutine
// owns the socket and handles datagrams one at a time.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcoot/wordquizzle/internal/dependencies/clock"
	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/protocol"
	"github.com/mcoot/wordquizzle/internal/registry"
)

// Config holds the matchmaking settings
type Config struct {
	Addr string

	// ReceiveTimeout bounds each blocking read so that shutdown and the
	// expiry sweep are noticed
	ReceiveTimeout time.Duration

	MaxDatagram int

	// RateLimit and RateBurst bound datagrams accepted per source address
	RateLimit rate.Limit
	RateBurst int
}

// DefaultConfig returns the default matchmaking configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":1920",
		ReceiveTimeout: 500 * time.Millisecond,
		MaxDatagram:    1024,
		RateLimit:      20,
		RateBurst:      40,
	}
}

// limiterIdle is how long a source may stay quiet before its limiter is freed
const limiterIdle = time.Minute

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Service is the UDP handshake endpoint
type Service struct {
	cfg      Config
	registry *registry.Registry
	clock    clock.Clock
	logger   *slog.Logger

	conn      *net.UDPConn
	limiters  map[netip.Addr]*sourceLimiter
	lastSweep time.Time
}

// New creates a matchmaking service. Listen must be called before Run.
func New(cfg Config, registry *registry.Registry, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		registry: registry,
		clock:    clock,
		logger:   logger.With(slog.String("component", "matchmaking")),
		limiters: make(map[netip.Addr]*sourceLimiter),
	}
}

// Listen binds the UDP socket
func (s *Service) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("resolve udp %s: %w", s.cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", s.cfg.Addr, err)
	}
	s.conn = conn
	s.logger.Info("matchmaking listening", slog.String("addr", conn.LocalAddr().String()))
	return nil
}

// Addr returns the bound address
func (s *Service) Addr() netip.AddrPort {
	ap := s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Run processes datagrams until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("matchmaking: Run called before Listen")
	}
	defer s.conn.Close()

	buf := make([]byte, s.cfg.MaxDatagram)
	s.lastSweep = s.clock.Now()
	for {
		if ctx.Err() != nil {
			s.logger.Info("matchmaking stopped")
			return nil
		}
		s.maybeSweep()

		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReceiveTimeout))
		n, src, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("udp read failed", slog.String("error", err.Error()))
			continue
		}

		src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())
		if !s.allow(src.Addr()) {
			s.logger.Warn("datagram dropped by rate limit", slog.String("from", src.String()))
			continue
		}
		s.dispatch(ctx, src, string(buf[:n]))
	}
}

func (s *Service) dispatch(ctx context.Context, src netip.AddrPort, datagram string) {
	req, err := protocol.ParseUDP(datagram)
	if err != nil {
		s.reply(src, string(protocol.CodeFor(err)))
		return
	}

	switch req.Command {
	case protocol.CmdChallenge:
		s.challenge(ctx, src, req.Args[0], req.Args[1])
	case protocol.CmdChallengeOK:
		s.accept(ctx, src)
	case protocol.CmdChallengeRefused:
		s.refuse(ctx, src)
	}
}

func (s *Service) challenge(ctx context.Context, src netip.AddrPort, challenger, challenged string) {
	c, err := s.registry.RecordChallenge(ctx, challenger, challenged, src)
	if err != nil {
		s.reply(src, string(protocol.CodeFor(err)))
		return
	}
	s.logger.Info("challenge forwarded",
		slog.String("challenger", challenger),
		slog.String("challenged", challenged),
		slog.String("to", c.ChallengedEndpoint.String()),
	)
	s.reply(c.ChallengedEndpoint, protocol.ChallengeInvite(challenger))
}

func (s *Service) accept(ctx context.Context, src netip.AddrPort) {
	outcome, err := s.registry.ResolveChallenge(ctx, src)
	switch {
	case err == nil:
		msg := protocol.MatchAccepted(outcome.MatchID)
		s.reply(outcome.Challenge.ChallengerEndpoint, msg)
		s.reply(src, msg)
	case errors.Is(err, model.ErrUnknownChallenge):
		s.reply(src, string(protocol.CodeFor(err)))
	default:
		// the challenge was consumed, so both sides learn how it ended
		code := string(protocol.CodeFor(err))
		if code == string(protocol.CodeInternalError) {
			s.logger.Error("match creation failed", slog.String("error", err.Error()))
		} else {
			s.logger.Info("challenge answered late",
				slog.String("challenger", outcome.Challenge.Challenger),
				slog.String("challenged", outcome.Challenge.Challenged),
			)
		}
		s.reply(outcome.Challenge.ChallengerEndpoint, code)
		s.reply(src, code)
	}
}

func (s *Service) refuse(ctx context.Context, src netip.AddrPort) {
	c, err := s.registry.DiscardChallenge(ctx, src)
	if err != nil {
		s.reply(src, string(protocol.CodeFor(err)))
		return
	}
	s.logger.Info("challenge refused",
		slog.String("challenger", c.Challenger),
		slog.String("challenged", c.Challenged),
	)
	s.reply(c.ChallengerEndpoint, string(protocol.CodeChallengeRefused))
}

func (s *Service) reply(to netip.AddrPort, msg string) {
	if _, err := s.conn.WriteToUDPAddrPort([]byte(msg), to); err != nil {
		s.logger.Warn("udp write failed",
			slog.String("to", to.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) allow(addr netip.Addr) bool {
	now := time.Now()
	l, ok := s.limiters[addr]
	if !ok {
		l = &sourceLimiter{limiter: rate.NewLimiter(s.cfg.RateLimit, s.cfg.RateBurst)}
		s.limiters[addr] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// maybeSweep purges stale challenges and idle limiters at most once per
// receive timeout
func (s *Service) maybeSweep() {
	now := s.clock.Now()
	if now.Sub(s.lastSweep) < s.cfg.ReceiveTimeout {
		return
	}
	s.lastSweep = now

	if n := s.registry.ExpireChallenges(now); n > 0 {
		s.logger.Debug("expired pending challenges", slog.Int("count", n))
	}
	cutoff := time.Now().Add(-limiterIdle)
	for addr, l := range s.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(s.limiters, addr)
		}
	}
}
