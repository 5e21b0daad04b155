package model

import "time"

// PendingChallenge is a handshake waiting for the challenged user's answer
type PendingChallenge struct {
	Challenger         string
	Challenged         string
	ChallengerEndpoint Endpoint
	ChallengedEndpoint Endpoint
	RequestedAt        time.Time
}

// ChallengeOutcome is the result of an accepted handshake
type ChallengeOutcome struct {
	Challenge PendingChallenge
	MatchID   MatchID
}
