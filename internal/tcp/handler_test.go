package tcp

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

var remote = netip.MustParseAddrPort("127.0.0.1:50000")

type HandlerSuite struct {
	suite.Suite
	engine   *mocks.MatchEngine
	registry *registry.Registry
	handler  *Handler
	ctx      context.Context
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.engine = mocks.NewMatchEngine()
	cfg := registry.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	clock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.registry = registry.New(s.engine, clock, cfg, testutil.NopLogger())
	s.handler = NewHandler(s.registry, s.engine, testutil.NopLogger())
	s.ctx = context.Background()

	for _, name := range []string{"alice", "bob"} {
		_, err := s.registry.Register(s.ctx, name, "pw")
		s.Require().NoError(err)
	}
}

func (s *HandlerSuite) do(line string) Response {
	return s.handler.Process(s.ctx, Request{ConnID: "c1", Remote: remote, Line: line})
}

func (s *HandlerSuite) payload(line string) string {
	return string(s.do(line).Payload)
}

func (s *HandlerSuite) TestLogin() {
	resp := s.do("LOGIN alice pw 4000")
	s.Equal("OK", string(resp.Payload))
	s.Equal("alice", resp.LoggedIn)

	info, err := s.registry.UserInfo(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(netip.MustParseAddrPort("127.0.0.1:4000"), info.Endpoint)
}

func (s *HandlerSuite) TestLoginDefaultPort() {
	s.Equal("OK", s.payload("LOGIN alice pw"))

	info, _ := s.registry.UserInfo(s.ctx, "alice")
	s.Equal(registry.DefaultConfig().DefaultUDPPort, info.Endpoint.Port())
}

func (s *HandlerSuite) TestLoginFailures() {
	s.Equal("USER_NOT_FOUND", s.payload("LOGIN ghost pw"))
	s.Equal("WRONG_PASSWORD", s.payload("LOGIN alice nope"))
	s.Equal("WRONG_FORMAT", s.payload("LOGIN alice"))
	s.Equal("WRONG_FORMAT", s.payload("LOGIN alice pw port"))

	s.Equal("OK", s.payload("LOGIN alice pw"))
	s.Equal("ALREADY_LOGGED", s.payload("LOGIN alice pw"))
}

func (s *HandlerSuite) TestLoginOncePerConnection() {
	resp := s.handler.Process(s.ctx, Request{Remote: remote, User: "alice", Line: "LOGIN bob pw"})
	s.Equal("ALREADY_LOGGED", string(resp.Payload))
	s.Empty(resp.LoggedIn)
}

func (s *HandlerSuite) TestLogout() {
	s.do("LOGIN alice pw")

	resp := s.do("LOGOUT alice")
	s.Equal("OK", string(resp.Payload))
	s.Equal("alice", resp.LoggedOut)
	s.Equal("OK", s.payload("LOGOUT alice"))
	s.Equal("USER_NOT_FOUND", s.payload("LOGOUT ghost"))
}

func (s *HandlerSuite) TestFriends() {
	s.Equal("NOT_LOGGED", s.payload("ADD_FRIEND alice bob"))
	s.do("LOGIN alice pw")

	s.Equal("OK", s.payload("ADD_FRIEND alice bob"))
	s.Equal("ALREADY_FRIENDS", s.payload("ADD_FRIEND alice bob"))
	s.Equal("SAME_USER", s.payload("ADD_FRIEND alice alice"))
	s.Equal(`["bob"]`, s.payload("FRIEND_LIST alice"))
	s.Equal("NOT_LOGGED", s.payload("FRIEND_LIST bob"))
}

func (s *HandlerSuite) TestEmptyFriendList() {
	s.do("LOGIN alice pw")
	s.Equal(`[]`, s.payload("FRIEND_LIST alice"))
}

func (s *HandlerSuite) TestScoreAndRankings() {
	s.do("LOGIN alice pw")
	s.do("LOGIN bob pw")
	s.do("ADD_FRIEND alice bob")

	id := s.acceptMatch("alice", "bob")
	s.engine.Finish(id, map[string]int{"alice": 3, "bob": 8})

	s.Equal("3", s.payload("SCORE alice"))
	s.Equal(`[{"name":"bob","score":8},{"name":"alice","score":3}]`, s.payload("RANKINGS alice"))
	s.Equal("USER_NOT_FOUND", s.payload("SCORE ghost"))
}

func (s *HandlerSuite) acceptMatch(challenger, challenged string) model.MatchID {
	info, err := s.registry.UserInfo(s.ctx, challenged)
	s.Require().NoError(err)
	_, err = s.registry.RecordChallenge(s.ctx, challenger, challenged, remote)
	s.Require().NoError(err)
	outcome, err := s.registry.ResolveChallenge(s.ctx, info.Endpoint)
	s.Require().NoError(err)
	return outcome.MatchID
}

func (s *HandlerSuite) TestReadyForChallenge() {
	id, _ := s.engine.CreateMatch(s.ctx, "alice", "bob")
	s.Require().Equal(model.MatchID(1), id)

	s.Equal("WORD 1 word-0", s.payload("READY_FOR_CHALLENGE 1 alice"))
	s.Equal("UNKNOWN_USERNAME", s.payload("READY_FOR_CHALLENGE 1 carol"))
	s.Equal("WRONG_FORMAT", s.payload("READY_FOR_CHALLENGE one alice"))
}

func (s *HandlerSuite) TestNextWordChecksAndIssuesNextWord() {
	_, _ = s.engine.CreateMatch(s.ctx, "alice", "bob")

	s.Equal("WRONG 1 cane translation-0\nWORD 1 word-1", s.payload("NEXT_WORD 1 alice cane"))
	s.Equal("CORRECT 1 TRANSLATION-1 translation-1\nWORD 1 word-2", s.payload("NEXT_WORD 1 alice TRANSLATION-1"))
}

func (s *HandlerSuite) TestNextWordAtEndOfMatch() {
	_, _ = s.engine.CreateMatch(s.ctx, "alice", "bob")
	s.engine.FailNextWord(1, "alice", model.ErrEndOfMatch)

	s.Equal("CORRECT 1 translation-0 translation-0\nEND_OF_MATCH\nRECAP 1", s.payload("NEXT_WORD 1 alice translation-0"))
}

func (s *HandlerSuite) TestNextWordAfterEnd() {
	_, _ = s.engine.CreateMatch(s.ctx, "alice", "bob")
	s.engine.FailPlayer(1, "alice", model.ErrEndOfMatch)

	s.Equal("END_OF_MATCH\nRECAP 1", s.payload("NEXT_WORD 1 alice dog"))
}

func (s *HandlerSuite) TestNextWordGameTimeout() {
	_, _ = s.engine.CreateMatch(s.ctx, "alice", "bob")
	s.engine.FailPlayer(1, "alice", model.ErrGameTimeout)

	s.Equal("GAME_TIMEOUT\nRECAP 1", s.payload("NEXT_WORD 1 alice dog"))
	s.Equal("GAME_TIMEOUT\nRECAP 1", s.payload("READY_FOR_CHALLENGE 1 alice"))
}

func (s *HandlerSuite) TestNextWordErrors() {
	_, _ = s.engine.CreateMatch(s.ctx, "alice", "bob")

	s.Equal("UNKNOWN_USERNAME", s.payload("NEXT_WORD 1 carol dog"))
	s.Equal("MATCH_NOT_FOUND", s.payload("NEXT_WORD 9 alice dog"))
	s.Equal("WRONG_FORMAT", s.payload("NEXT_WORD x alice dog"))
	s.Equal("WRONG_FORMAT", s.payload("NEXT_WORD 1 alice"))
}

func (s *HandlerSuite) TestRejectedRequests() {
	s.Equal("ILLEGAL_REQUEST", s.payload("CHALLENGE alice bob"))
	s.Equal("UNKNOWN_REQUEST", s.payload("JUMP alice"))
	s.Equal("WRONG_FORMAT", s.payload(""))

	resp := s.handler.Process(s.ctx, Request{Remote: remote, Err: model.ErrMalformedRequest})
	s.Equal("WRONG_FORMAT", string(resp.Payload))
}

type panickingEngine struct {
	*mocks.MatchEngine
}

func (panickingEngine) NextWord(ctx context.Context, id model.MatchID, player string) (string, error) {
	panic("engine bug")
}

func (s *HandlerSuite) TestPanicBecomesInternalError() {
	h := NewHandler(s.registry, panickingEngine{s.engine}, testutil.NopLogger())

	resp := h.Process(s.ctx, Request{Remote: remote, Line: "READY_FOR_CHALLENGE 1 alice"})
	s.Equal("INTERNAL_ERROR", string(resp.Payload))
}

func (s *HandlerSuite) TestDisconnectedLogsOut() {
	s.do("LOGIN alice pw")

	s.handler.Disconnected(s.ctx, "alice", "c1")

	info, _ := s.registry.UserInfo(s.ctx, "alice")
	s.False(info.Online())
}

func (s *HandlerSuite) TestDisconnectedKeepsNewerSession() {
	s.do("LOGIN alice pw")
	s.Equal("OK", string(s.handler.Process(s.ctx, Request{ConnID: "c2", Line: "LOGOUT alice"}).Payload))
	s.Equal("OK", string(s.handler.Process(s.ctx, Request{ConnID: "c3", Remote: remote, Line: "LOGIN alice pw"}).Payload))

	s.handler.Disconnected(s.ctx, "alice", "c1")

	info, _ := s.registry.UserInfo(s.ctx, "alice")
	s.True(info.Online())
}
