package matchmaking

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordquizzle/internal/dependencies/mocks"
	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/registry"
	"github.com/mcoot/wordquizzle/internal/testutil"
)

const silence = 100 * time.Millisecond

type ServiceSuite struct {
	suite.Suite
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan error
	engine   *mocks.MatchEngine
	clock    *mocks.MockClock
	registry *registry.Registry
	service  *Service
	server   netip.AddrPort
	alice    *testutil.Peer
	bob      *testutil.Peer
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.engine = mocks.NewMatchEngine()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cfg := registry.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	s.registry = registry.New(s.engine, s.clock, cfg, testutil.NopLogger())

	s.alice = testutil.ListenPeer(s.T())
	s.bob = testutil.ListenPeer(s.T())
	localhost := netip.MustParseAddr("127.0.0.1")
	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := s.registry.Register(s.ctx, name, "pw")
		s.Require().NoError(err)
	}
	s.Require().NoError(s.registry.Login(s.ctx, "alice", "pw", localhost, s.alice.Port()))
	s.Require().NoError(s.registry.Login(s.ctx, "bob", "pw", localhost, s.bob.Port()))
	s.Require().NoError(s.registry.Login(s.ctx, "carol", "pw", localhost, 1))
	s.Require().NoError(s.registry.AddFriendship(s.ctx, "bob", "alice"))

	s.startService(DefaultConfig())
}

func (s *ServiceSuite) startService(cfg Config) {
	cfg.Addr = "127.0.0.1:0"
	cfg.ReceiveTimeout = 20 * time.Millisecond
	s.service = New(cfg, s.registry, s.clock, testutil.NopLogger())
	s.Require().NoError(s.service.Listen())
	s.server = s.service.Addr()

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel
	s.stopped = make(chan error, 1)
	go func() { s.stopped <- s.service.Run(ctx) }()
}

func (s *ServiceSuite) stopService() {
	s.cancel()
	select {
	case err := <-s.stopped:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("matchmaking did not stop")
	}
}

func (s *ServiceSuite) TearDownTest() {
	s.stopService()
}

func (s *ServiceSuite) challengeAlice() {
	s.bob.SendTo(s.server, "CHALLENGE bob alice")
	s.Equal("CHALLENGE bob", s.alice.Recv())
}

func (s *ServiceSuite) TestAcceptedWithinTimeout() {
	s.challengeAlice()
	s.clock.Advance(5 * time.Second)

	s.alice.SendTo(s.server, "CHALLENGE_OK")

	s.Equal("OK 1", s.alice.Recv())
	s.Equal("OK 1", s.bob.Recv())
	for _, name := range []string{"alice", "bob"} {
		info, err := s.registry.UserInfo(s.ctx, name)
		s.Require().NoError(err)
		s.Equal([]model.MatchID{1}, info.PendingMatches)
	}
}

func (s *ServiceSuite) TestAcceptedAfterTimeout() {
	s.challengeAlice()
	s.clock.Advance(s.registry.Config().ChallengeTimeout + time.Second)

	s.alice.SendTo(s.server, "CHALLENGE_OK")

	s.Equal("CHALLENGE_TIMEOUT", s.alice.Recv())
	s.Equal("CHALLENGE_TIMEOUT", s.bob.Recv())
	s.Equal(0, s.engine.MatchCount())
}

func (s *ServiceSuite) TestRefused() {
	s.challengeAlice()

	s.alice.SendTo(s.server, "CHALLENGE_REFUSED")

	s.Equal("CHALLENGE_REFUSED", s.bob.Recv())
	s.alice.ExpectSilence(silence)
	s.Equal(0, s.engine.MatchCount())
}

func (s *ServiceSuite) TestAnswerWithoutChallenge() {
	s.alice.SendTo(s.server, "CHALLENGE_OK")
	s.Equal("CHALLENGE_TIMEOUT", s.alice.Recv())

	s.alice.SendTo(s.server, "CHALLENGE_REFUSED")
	s.Equal("CHALLENGE_TIMEOUT", s.alice.Recv())
	s.bob.ExpectSilence(silence)
}

func (s *ServiceSuite) TestDuplicateAcceptGoesToSenderOnly() {
	s.challengeAlice()
	s.alice.SendTo(s.server, "CHALLENGE_OK")
	s.Equal("OK 1", s.alice.Recv())
	s.Equal("OK 1", s.bob.Recv())

	s.alice.SendTo(s.server, "CHALLENGE_OK")
	s.Equal("CHALLENGE_TIMEOUT", s.alice.Recv())
	s.bob.ExpectSilence(silence)
	s.Equal(1, s.engine.MatchCount())
}

func (s *ServiceSuite) TestChallengeValidationErrorsGoToRequester() {
	cases := map[string]string{
		"CHALLENGE bob bob":   "SAME_USER",
		"CHALLENGE bob ghost": "USER_NOT_FOUND",
		"CHALLENGE bob carol": "NOT_FRIENDS",
		"CHALLENGE bob":       "WRONG_FORMAT",
		"HELLO":               "UNKNOWN_REQUEST",
		"LOGIN bob pw":        "UNKNOWN_REQUEST",
	}
	for msg, want := range cases {
		s.bob.SendTo(s.server, msg)
		s.Equal(want, s.bob.Recv(), msg)
	}
	s.alice.ExpectSilence(silence)
}

func (s *ServiceSuite) TestChallengedMustBeOnline() {
	s.Require().NoError(s.registry.Logout(s.ctx, "alice"))

	s.bob.SendTo(s.server, "CHALLENGE bob alice")
	s.Equal("NOT_LOGGED", s.bob.Recv())
}

func (s *ServiceSuite) TestExpiredChallengesAreSwept() {
	s.challengeAlice()
	s.Equal(1, s.registry.Stats().PendingChallenges)

	s.clock.Advance(s.registry.Config().ChallengeRetention + time.Second)

	s.Eventually(func() bool {
		return s.registry.Stats().PendingChallenges == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *ServiceSuite) TestRateLimitDropsFloods() {
	s.stopService()
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	s.startService(cfg)

	for i := 0; i < 5; i++ {
		s.bob.SendTo(s.server, "HELLO")
	}
	s.Equal("UNKNOWN_REQUEST", s.bob.Recv())
	s.Equal("UNKNOWN_REQUEST", s.bob.Recv())
	s.bob.ExpectSilence(silence)
}

func (s *ServiceSuite) TestStopsOnCancel() {
	s.cancel()
	select {
	case err := <-s.stopped:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("matchmaking did not notice cancellation")
	}
	// TearDownTest stops again
	s.stopped <- nil
}
