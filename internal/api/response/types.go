package response

import (
	"github.com/mcoot/wordquizzle/internal/model"
	"github.com/mcoot/wordquizzle/internal/registry"
)

// User represents a registered user in API responses
type User struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	Online         bool   `json:"online"`
	PendingMatches []int  `json:"pending_matches"`
	DoneMatches    []int  `json:"done_matches"`
}

// UserFromModel converts a model.User; the password hash never leaves the server
func UserFromModel(u model.User) User {
	return User{
		ID:             int(u.ID),
		Name:           u.Name,
		Score:          u.Score,
		Online:         u.Online(),
		PendingMatches: matchIDs(u.PendingMatches),
		DoneMatches:    matchIDs(u.DoneMatches),
	}
}

func matchIDs(ids []model.MatchID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

// Ranking is a user's friends leaderboard
type Ranking struct {
	User    string               `json:"user"`
	Entries []model.RankingEntry `json:"entries"`
}

// Stats is the server overview
type Stats = registry.Stats
