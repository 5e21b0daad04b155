package protocol

import (
	"errors"

	"github.com/mcoot/wordquizzle/internal/model"
)

// Code is a response code sent to clients on both transports
type Code string

const (
	CodeOK                Code = "OK"
	CodeUserNotFound      Code = "USER_NOT_FOUND"
	CodeAlreadyLogged     Code = "ALREADY_LOGGED"
	CodeNotLogged         Code = "NOT_LOGGED"
	CodeAlreadyFriends    Code = "ALREADY_FRIENDS"
	CodeNotFriends        Code = "NOT_FRIENDS"
	CodeSameUser          Code = "SAME_USER"
	CodeWrongPassword     Code = "WRONG_PASSWORD"
	CodeAlreadyRegistered Code = "ALREADY_REGISTERED"
	CodeChallengeTimeout  Code = "CHALLENGE_TIMEOUT"
	CodeChallengeRefused  Code = "CHALLENGE_REFUSED"
	CodeUnknownUsername   Code = "UNKNOWN_USERNAME"
	CodeMatchNotFound     Code = "MATCH_NOT_FOUND"
	CodeWrongFormat       Code = "WRONG_FORMAT"
	CodeUnknownRequest    Code = "UNKNOWN_REQUEST"
	CodeIllegalRequest    Code = "ILLEGAL_REQUEST"
	CodeGameTimeout       Code = "GAME_TIMEOUT"
	CodeEndOfMatch        Code = "END_OF_MATCH"
	CodeInternalError     Code = "INTERNAL_ERROR"
)

// errorCodes maps every domain error to the code reported for it
var errorCodes = []struct {
	err  error
	code Code
}{
	{model.ErrUserNotFound, CodeUserNotFound},
	{model.ErrAlreadyLogged, CodeAlreadyLogged},
	{model.ErrNotLoggedIn, CodeNotLogged},
	{model.ErrAlreadyFriends, CodeAlreadyFriends},
	{model.ErrNotFriends, CodeNotFriends},
	{model.ErrSameUser, CodeSameUser},
	{model.ErrInvalidPassword, CodeWrongPassword},
	{model.ErrAlreadyRegistered, CodeAlreadyRegistered},
	{model.ErrChallengeTimeout, CodeChallengeTimeout},
	{model.ErrUnknownChallenge, CodeChallengeTimeout},
	{model.ErrChallengeRefused, CodeChallengeRefused},
	{model.ErrUnknownUsername, CodeUnknownUsername},
	{model.ErrMatchNotFound, CodeMatchNotFound},
	{model.ErrMalformedRequest, CodeWrongFormat},
	{model.ErrUnknownCommand, CodeUnknownRequest},
	{model.ErrIllegalRequest, CodeIllegalRequest},
	{model.ErrGameTimeout, CodeGameTimeout},
	{model.ErrEndOfMatch, CodeEndOfMatch},
}

// CodeFor returns the response code for err. Errors outside the domain
// taxonomy map to CodeInternalError; nil maps to CodeOK.
func CodeFor(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeInternalError
}
