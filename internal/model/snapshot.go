package model

import "time"

// SnapshotVersion is bumped whenever the persisted layout changes
const SnapshotVersion = 1

// Snapshot is the durable form of the registry. Live endpoints are never
// persisted.
type Snapshot struct {
	Version int                 `json:"version"`
	SavedAt time.Time           `json:"saved_at"`
	Users   []SnapshotUser      `json:"users"`
	Friends map[UserID][]UserID `json:"friends"`
}

// SnapshotUser is a user record as persisted
type SnapshotUser struct {
	ID             UserID    `json:"id"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"password_hash"`
	Score          int       `json:"score"`
	PendingMatches []MatchID `json:"pending_matches"`
	DoneMatches    []MatchID `json:"done_matches"`
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Version: s.Version,
		SavedAt: s.SavedAt,
		Users:   make([]SnapshotUser, len(s.Users)),
		Friends: make(map[UserID][]UserID, len(s.Friends)),
	}
	for i, u := range s.Users {
		u.PendingMatches = append([]MatchID(nil), u.PendingMatches...)
		u.DoneMatches = append([]MatchID(nil), u.DoneMatches...)
		out.Users[i] = u
	}
	for id, friends := range s.Friends {
		out.Friends[id] = append([]UserID(nil), friends...)
	}
	return out
}

// HighestMatchID returns the largest match id any user refers to
func (s *Snapshot) HighestMatchID() MatchID {
	var highest MatchID
	for _, u := range s.Users {
		for _, id := range u.PendingMatches {
			highest = max(highest, id)
		}
		for _, id := range u.DoneMatches {
			highest = max(highest, id)
		}
	}
	return highest
}
