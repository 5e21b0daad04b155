package registry

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/wordquizzle/internal/dependencies/mocks"
	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/testutil"
)

var localhost = netip.MustParseAddr("127.0.0.1")

// registrySuite is embedded by every suite in this package
type registrySuite struct {
	suite.Suite
	engine   *mocks.MatchEngine
	clock    *mocks.MockClock
	registry *Registry
	ctx      context.Context
}

func (s *registrySuite) SetupTest() {
	s.engine = mocks.NewMatchEngine()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	cfg := DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	s.registry = New(s.engine, s.clock, cfg, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *registrySuite) register(names ...string) {
	for _, name := range names {
		_, err := s.registry.Register(s.ctx, name, name+"-pw")
		s.Require().NoError(err)
	}
}

func (s *registrySuite) login(name string, udpPort uint16) model.Endpoint {
	s.Require().NoError(s.registry.Login(s.ctx, name, name+"-pw", localhost, udpPort))
	return netip.AddrPortFrom(localhost, udpPort)
}

func (s *registrySuite) befriend(a, b string) {
	s.Require().NoError(s.registry.AddFriendship(s.ctx, a, b))
}

type RegistrySuite struct {
	registrySuite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) TestRegisterAssignsDenseIDs() {
	alice, err := s.registry.Register(s.ctx, "alice", "secret")
	s.Require().NoError(err)
	bob, err := s.registry.Register(s.ctx, "bob", "secret")
	s.Require().NoError(err)

	s.Equal(model.UserID(0), alice.ID)
	s.Equal(model.UserID(1), bob.ID)
	s.NotEqual("secret", alice.PasswordHash)
	s.False(alice.Online())
}

func (s *RegistrySuite) TestRegisterTwiceFails() {
	s.register("alice")

	_, err := s.registry.Register(s.ctx, "alice", "other")
	s.ErrorIs(err, model.ErrAlreadyRegistered)

	// the first registration still works
	s.NoError(s.registry.Login(s.ctx, "alice", "alice-pw", localhost, 2000))
}

func (s *RegistrySuite) TestRegisterRejectsEmptyPassword() {
	_, err := s.registry.Register(s.ctx, "alice", "")
	s.ErrorIs(err, model.ErrInvalidPassword)

	_, err = s.registry.Register(s.ctx, "alice", "   ")
	s.ErrorIs(err, model.ErrInvalidPassword)

	s.Equal(0, s.registry.Stats().Registered)
}

func (s *RegistrySuite) TestRegisterRejectsInvalidName() {
	_, err := s.registry.Register(s.ctx, "", "pw")
	s.ErrorIs(err, model.ErrMalformedRequest)

	_, err = s.registry.Register(s.ctx, "al ice", "pw")
	s.ErrorIs(err, model.ErrMalformedRequest)
}

func (s *RegistrySuite) TestConcurrentRegistrationKeepsIDsDense() {
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.registry.Register(s.ctx, string(rune('a'+i)), "pw")
		}(i)
	}
	wg.Wait()

	snap := s.registry.Snapshot()
	s.Require().Len(snap.Users, n)
	for i, u := range snap.Users {
		s.Equal(model.UserID(i), u.ID)
		s.Contains(snap.Friends, u.ID)
	}
}

func (s *RegistrySuite) TestLogin() {
	s.register("alice")

	err := s.registry.Login(s.ctx, "alice", "alice-pw", localhost, 4000)
	s.Require().NoError(err)

	info, err := s.registry.UserInfo(s.ctx, "alice")
	s.Require().NoError(err)
	s.True(info.Online())
	s.Equal(netip.MustParseAddrPort("127.0.0.1:4000"), info.Endpoint)
}

func (s *RegistrySuite) TestLoginUnmapsIPv4InIPv6() {
	s.register("alice")

	err := s.registry.Login(s.ctx, "alice", "alice-pw", netip.MustParseAddr("::ffff:10.0.0.1"), 4000)
	s.Require().NoError(err)

	info, _ := s.registry.UserInfo(s.ctx, "alice")
	s.Equal(netip.MustParseAddrPort("10.0.0.1:4000"), info.Endpoint)
}

func (s *RegistrySuite) TestLoginDefaultPort() {
	s.register("alice")

	s.Require().NoError(s.registry.LoginDefaultPort(s.ctx, "alice", "alice-pw", localhost))

	info, _ := s.registry.UserInfo(s.ctx, "alice")
	s.Equal(DefaultConfig().DefaultUDPPort, info.Endpoint.Port())
}

func (s *RegistrySuite) TestLoginErrors() {
	err := s.registry.Login(s.ctx, "ghost", "pw", localhost, 1)
	s.ErrorIs(err, model.ErrUserNotFound)

	s.register("alice")
	err = s.registry.Login(s.ctx, "alice", "wrong", localhost, 1)
	s.ErrorIs(err, model.ErrInvalidPassword)

	s.login("alice", 1)
	err = s.registry.Login(s.ctx, "alice", "alice-pw", localhost, 2)
	s.ErrorIs(err, model.ErrAlreadyLogged)

	// already logged is reported before the password is checked
	err = s.registry.Login(s.ctx, "alice", "wrong", localhost, 2)
	s.ErrorIs(err, model.ErrAlreadyLogged)
}

func (s *RegistrySuite) TestConcurrentDuplicateLoginsOneSucceeds() {
	s.register("alice")

	const n = 20
	var succeeded, alreadyLogged atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(port uint16) {
			defer wg.Done()
			err := s.registry.Login(s.ctx, "alice", "alice-pw", localhost, port)
			switch {
			case err == nil:
				succeeded.Add(1)
			case err == model.ErrAlreadyLogged:
				alreadyLogged.Add(1)
			}
		}(uint16(5000 + i))
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(n-1), alreadyLogged.Load())
}

func (s *RegistrySuite) TestLogout() {
	s.register("alice")
	s.login("alice", 1)

	s.Require().NoError(s.registry.Logout(s.ctx, "alice"))
	info, _ := s.registry.UserInfo(s.ctx, "alice")
	s.False(info.Online())

	// logging out twice is allowed
	s.NoError(s.registry.Logout(s.ctx, "alice"))

	// and the user can log in again
	s.login("alice", 2)
}

func (s *RegistrySuite) TestLogoutUnknownUser() {
	s.ErrorIs(s.registry.Logout(s.ctx, "ghost"), model.ErrUserNotFound)
}

func (s *RegistrySuite) TestStats() {
	s.register("alice", "bob", "carol")
	s.login("alice", 1)
	s.login("bob", 2)
	s.befriend("alice", "bob")
	_, err := s.registry.RecordChallenge(s.ctx, "alice", "bob", netip.MustParseAddrPort("127.0.0.1:1"))
	s.Require().NoError(err)

	s.Equal(Stats{Registered: 3, Online: 2, PendingChallenges: 1}, s.registry.Stats())
}

func (s *RegistrySuite) TestUserInfoReturnsCopy() {
	s.register("alice")

	info, err := s.registry.UserInfo(s.ctx, "alice")
	s.Require().NoError(err)
	info.Score = 100
	info.DoneMatches = append(info.DoneMatches, 1)

	again, _ := s.registry.UserInfo(s.ctx, "alice")
	s.Equal(0, again.Score)
	s.Empty(again.DoneMatches)
}
