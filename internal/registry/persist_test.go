package registry

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/wordquizzle/internal/dependencies/mocks"
	"github.com/mcoot/wordquizzle/internal/match"
	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/storage/file"
	"github.com/mcoot/wordquizzle/internal/storage/memory"
	"github.com/mcoot/wordquizzle/internal/testutil"
)

type PersistSuite struct {
	registrySuite
}

func TestPersistSuite(t *testing.T) {
	suite.Run(t, new(PersistSuite))
}

func (s *PersistSuite) SetupTest() {
	s.registrySuite.SetupTest()
	s.register("alice", "bob", "carol")
	s.login("alice", 1)
	aliceEP := netip.AddrPortFrom(localhost, 1)
	s.login("bob", 2)
	s.befriend("alice", "bob")
	s.befriend("bob", "carol")

	_, err := s.registry.RecordChallenge(s.ctx, "bob", "alice", netip.AddrPortFrom(localhost, 9))
	s.Require().NoError(err)
	outcome, err := s.registry.ResolveChallenge(s.ctx, aliceEP)
	s.Require().NoError(err)
	s.engine.Finish(outcome.MatchID, map[string]int{"alice": 6})
	_, err = s.registry.ScoreOf(s.ctx, "alice")
	s.Require().NoError(err)
}

func (s *PersistSuite) restored(snap *model.Snapshot) *Registry {
	fresh := New(s.engine, s.clock, s.registry.Config(), testutil.NopLogger())
	s.Require().NoError(fresh.Restore(snap))
	return fresh
}

func (s *PersistSuite) TestSnapshotContent() {
	snap := s.registry.Snapshot()

	s.Equal(model.SnapshotVersion, snap.Version)
	s.Equal(s.clock.Now(), snap.SavedAt)
	s.Require().Len(snap.Users, 3)
	s.Equal("alice", snap.Users[0].Name)
	s.Equal(6, snap.Users[0].Score)
	s.Equal([]model.MatchID{1}, snap.Users[0].DoneMatches)
	s.Equal([]model.MatchID{1}, snap.Users[1].PendingMatches)
	s.Equal(map[model.UserID][]model.UserID{
		0: {1},
		1: {0, 2},
		2: {1},
	}, snap.Friends)
}

func (s *PersistSuite) TestRestoreRoundTrip() {
	fresh := s.restored(s.registry.Snapshot())

	score, err := fresh.ScoreOf(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(6, score)

	// every user comes back logged out
	s.Equal(Stats{Registered: 3}, fresh.Stats())
	_, err = fresh.FriendsOf(s.ctx, "bob")
	s.ErrorIs(err, model.ErrNotLoggedIn)

	// passwords survive
	s.Require().NoError(fresh.Login(s.ctx, "bob", "bob-pw", localhost, 2))
	friends, err := fresh.FriendsOf(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal([]string{"alice", "carol"}, friends)

	// ids continue after the restored ones
	dave, err := fresh.Register(s.ctx, "dave", "pw")
	s.Require().NoError(err)
	s.Equal(model.UserID(3), dave.ID)
}

func (s *PersistSuite) TestRestoreKeepsPendingMatches() {
	fresh := s.restored(s.registry.Snapshot())

	info, err := fresh.UserInfo(s.ctx, "bob")
	s.Require().NoError(err)
	s.Empty(info.PendingMatches, "bob's match settles on read since it is finished")
	s.Equal([]model.MatchID{1}, info.DoneMatches)
}

func (s *PersistSuite) freshEngine() *match.Service {
	dict := match.NewDictionary()
	s.Require().NoError(dict.LoadPairs(match.DefaultPairs))
	cfg := match.Config{WordsPerMatch: 2, Duration: time.Minute}
	return match.NewService(cfg, dict, s.clock, mocks.NewMockRandom(), testutil.NopLogger())
}

func (s *PersistSuite) TestLoadMovesEngineIDsPastSnapshot() {
	store := memory.New()
	s.Require().NoError(store.SaveSnapshot(s.ctx, s.registry.Snapshot()))

	engine := s.freshEngine()
	fresh := New(engine, s.clock, s.registry.Config(), testutil.NopLogger())
	loaded, err := Load(s.ctx, fresh, store)
	s.Require().NoError(err)
	s.True(loaded)

	id, err := engine.CreateMatch(s.ctx, "carol", "alice")
	s.Require().NoError(err)
	s.Equal(model.MatchID(2), id)
}

func (s *PersistSuite) TestReusedMatchIDSettlesWithoutScore() {
	engine := s.freshEngine()
	fresh := New(engine, s.clock, s.registry.Config(), testutil.NopLogger())
	s.Require().NoError(fresh.Restore(s.registry.Snapshot()))

	// bob is still pending on match 1 from before the restart
	id, err := engine.CreateMatch(s.ctx, "alice", "carol")
	s.Require().NoError(err)
	s.Require().Equal(model.MatchID(1), id)
	s.clock.Advance(2 * time.Minute)

	score, err := fresh.ScoreOf(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(0, score)

	info, err := fresh.UserInfo(s.ctx, "bob")
	s.Require().NoError(err)
	s.Empty(info.PendingMatches)
	s.Equal([]model.MatchID{1}, info.DoneMatches)

	ranking, err := fresh.RankingOf(s.ctx, "carol")
	s.Require().NoError(err)
	s.Len(ranking, 2)
}

func (s *PersistSuite) TestRestoreKeepsFriendOrder() {
	// carol befriended bob before alice did, so bob's list is not in id order
	s.registrySuite.SetupTest()
	s.register("alice", "bob", "carol")
	s.login("alice", 1)
	s.login("bob", 2)
	s.befriend("bob", "carol")
	s.befriend("alice", "bob")

	before, err := s.registry.FriendsOf(s.ctx, "bob")
	s.Require().NoError(err)
	s.Require().Equal([]string{"carol", "alice"}, before)

	fresh := s.restored(s.registry.Snapshot())
	s.Require().NoError(fresh.Login(s.ctx, "bob", "bob-pw", localhost, 2))
	after, err := fresh.FriendsOf(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(before, after)

	ranking, err := fresh.RankingOf(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal([]model.RankingEntry{{Name: "bob"}, {Name: "carol"}, {Name: "alice"}}, ranking)
}

func (s *PersistSuite) TestRestoreRejectsOneSidedFriendship() {
	snap := &model.Snapshot{
		Version: model.SnapshotVersion,
		Users:   []model.SnapshotUser{{ID: 0, Name: "a"}, {ID: 1, Name: "b"}},
		Friends: map[model.UserID][]model.UserID{0: {1}},
	}
	fresh := New(s.engine, s.clock, s.registry.Config(), testutil.NopLogger())
	s.Error(fresh.Restore(snap))
}

func (s *PersistSuite) TestRestoreIntoNonEmptyRegistryFails() {
	s.Error(s.registry.Restore(s.registry.Snapshot()))
}

func (s *PersistSuite) TestRestoreRejectsSparseIDs() {
	snap := &model.Snapshot{
		Version: model.SnapshotVersion,
		Users:   []model.SnapshotUser{{ID: 0, Name: "a"}, {ID: 2, Name: "b"}},
	}
	fresh := New(s.engine, s.clock, s.registry.Config(), testutil.NopLogger())
	s.Error(fresh.Restore(snap))
}

func (s *PersistSuite) TestRestoreRejectsDanglingFriend() {
	snap := &model.Snapshot{
		Version: model.SnapshotVersion,
		Users:   []model.SnapshotUser{{ID: 0, Name: "a"}},
		Friends: map[model.UserID][]model.UserID{0: {5}},
	}
	fresh := New(s.engine, s.clock, s.registry.Config(), testutil.NopLogger())
	s.Error(fresh.Restore(snap))
}

func (s *PersistSuite) TestLoadWithoutSnapshot() {
	fresh := New(s.engine, s.clock, s.registry.Config(), testutil.NopLogger())

	loaded, err := Load(s.ctx, fresh, memory.New())
	s.Require().NoError(err)
	s.False(loaded)
	s.Equal(0, fresh.Stats().Registered)
}

func (s *PersistSuite) TestPersisterSaveAndLoad() {
	store := file.New(filepath.Join(s.T().TempDir(), "wq.json"))
	p := NewPersister(s.registry, store, time.Hour, testutil.NopLogger())
	s.Require().NoError(p.Save(s.ctx))

	fresh := New(s.engine, s.clock, s.registry.Config(), testutil.NopLogger())
	loaded, err := Load(s.ctx, fresh, store)
	s.Require().NoError(err)
	s.True(loaded)

	score, err := fresh.ScoreOf(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(6, score)
}

type flakyStore struct {
	*memory.Storage
	fail bool
}

func (f *flakyStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if f.fail {
		return errors.New("store unavailable")
	}
	return f.Storage.SaveSnapshot(ctx, snap)
}

func (s *PersistSuite) TestFailedSaveKeepsPreviousSnapshot() {
	store := &flakyStore{Storage: memory.New()}
	p := NewPersister(s.registry, store, time.Hour, testutil.NopLogger())
	s.Require().NoError(p.Save(s.ctx))

	_, err := s.registry.Register(s.ctx, "dave", "pw")
	s.Require().NoError(err)
	store.fail = true

	s.ErrorContains(p.Save(s.ctx), "store unavailable")

	snap, err := store.LoadSnapshot(s.ctx)
	s.Require().NoError(err)
	s.Len(snap.Users, 3)
}

func (s *PersistSuite) TestPersisterRunSavesOnShutdown() {
	store := memory.New()
	p := NewPersister(s.registry, store, time.Hour, testutil.NopLogger())

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("persister did not stop")
	}
	s.Equal(1, store.Saves())
}

func (s *PersistSuite) TestPersisterRunSavesPeriodically() {
	store := memory.New()
	p := NewPersister(s.registry, store, 10*time.Millisecond, testutil.NopLogger())

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	s.Eventually(func() bool { return store.Saves() >= 2 }, 5*time.Second, 10*time.Millisecond)
}
