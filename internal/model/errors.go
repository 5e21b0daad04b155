package model

import "errors"

// Common errors used across the application
var (
	// Registry errors
	ErrUserNotFound      = errors.New("user not found")
	ErrAlreadyRegistered = errors.New("user is already registered")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrAlreadyLogged     = errors.New("user is already logged in")
	ErrNotLoggedIn       = errors.New("user is not logged in")
	ErrSameUser          = errors.New("users are the same")
	ErrAlreadyFriends    = errors.New("users are already friends")
	ErrNotFriends        = errors.New("users are not friends")

	// Challenge handshake errors
	ErrChallengeTimeout = errors.New("challenge request timed out")
	ErrChallengeRefused = errors.New("challenge refused")
	ErrUnknownChallenge = errors.New("no pending challenge for endpoint")

	// Match errors
	ErrMatchNotFound   = errors.New("match not found")
	ErrUnknownUsername = errors.New("username is not part of the match")
	ErrGameTimeout     = errors.New("match time is over")
	ErrEndOfMatch      = errors.New("no more words in match")

	// Request errors
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrIllegalRequest   = errors.New("request not allowed on this transport")

	// Storage errors
	ErrNoSnapshot = errors.New("no snapshot stored")
)
