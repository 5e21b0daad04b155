// Package protocol defines the text protocol spoken over TCP and UDP: the
// command vocabulary, response codes and framing.
package protocol

import (
	"strconv"
	"strings"

	"github.com/mcoot/wordquizzle/internal/model"
)

// TCP commands
const (
	CmdLogin             = "LOGIN"
	CmdLogout            = "LOGOUT"
	CmdAddFriend         = "ADD_FRIEND"
	CmdFriendList        = "FRIEND_LIST"
	CmdScore             = "SCORE"
	CmdRankings          = "RANKINGS"
	CmdNextWord          = "NEXT_WORD"
	CmdReadyForChallenge = "READY_FOR_CHALLENGE"
)

// UDP commands
const (
	CmdChallenge        = "CHALLENGE"
	CmdChallengeOK      = "CHALLENGE_OK"
	CmdChallengeRefused = "CHALLENGE_REFUSED"
)

type arity struct{ min, max int }

var tcpArity = map[string]arity{
	CmdLogin:             {2, 3},
	CmdLogout:            {1, 1},
	CmdAddFriend:         {2, 2},
	CmdFriendList:        {1, 1},
	CmdScore:             {1, 1},
	CmdRankings:          {1, 1},
	CmdNextWord:          {3, 3},
	CmdReadyForChallenge: {2, 2},
}

var udpArity = map[string]arity{
	CmdChallenge:        {2, 2},
	CmdChallengeOK:      {0, 0},
	CmdChallengeRefused: {0, 0},
}

// Request is a parsed command line
type Request struct {
	Command string
	Args    []string
}

func (r Request) String() string {
	return strings.Join(append([]string{r.Command}, r.Args...), " ")
}

func parse(text string, table map[string]arity, illegal map[string]arity) (Request, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Request{}, model.ErrMalformedRequest
	}
	req := Request{Command: fields[0], Args: fields[1:]}

	a, ok := table[req.Command]
	if !ok {
		if _, other := illegal[req.Command]; other {
			return req, model.ErrIllegalRequest
		}
		return req, model.ErrUnknownCommand
	}
	if len(req.Args) < a.min || len(req.Args) > a.max {
		return req, model.ErrMalformedRequest
	}
	return req, nil
}

// ParseTCP parses a request received on the TCP transport. Handshake
// commands are rejected with model.ErrIllegalRequest.
func ParseTCP(line string) (Request, error) {
	return parse(line, tcpArity, udpArity)
}

// ParseUDP parses a handshake datagram. Anything outside the handshake
// vocabulary is an unknown command.
func ParseUDP(datagram string) (Request, error) {
	return parse(datagram, udpArity, nil)
}

// ParseMatchID parses a match id argument
func ParseMatchID(s string) (model.MatchID, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, model.ErrMalformedRequest
	}
	return model.MatchID(id), nil
}

// ParsePort parses a UDP port argument
func ParsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil || port == 0 {
		return 0, model.ErrMalformedRequest
	}
	return uint16(port), nil
}
