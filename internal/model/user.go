package model

import "net/netip"

// UserID is assigned densely in registration order
type UserID int

// MatchID identifies a match created by the match engine
type MatchID int

// Endpoint is the UDP address a logged in user receives challenges on
type Endpoint = netip.AddrPort

// User is a registered player. Values of this type handed out by the registry
// are copies; the registry owns the live record.
type User struct {
	ID           UserID
	Name         string
	PasswordHash string
	Score        int

	// Endpoint is valid only while the user is logged in
	Endpoint Endpoint

	PendingMatches []MatchID
	DoneMatches    []MatchID
}

// Online reports whether the user currently holds a live endpoint
func (u *User) Online() bool {
	return u.Endpoint.IsValid()
}

// RankingEntry is one row of a friends ranking
type RankingEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}
