package protocol

import (
	"fmt"

	"github.com/mcoot/wordquizzle/internal/model"
)

// Verdicts prefixed to a NEXT_WORD response
const (
	VerdictCorrect = "CORRECT"
	VerdictWrong   = "WRONG"
)

// WordLine announces the next word of a match
func WordLine(id model.MatchID, word string) string {
	return fmt.Sprintf("WORD %d %s", id, word)
}

// VerdictLine reports the outcome of a submitted translation
func VerdictLine(correct bool, id model.MatchID, submitted, canonical string) string {
	verdict := VerdictWrong
	if correct {
		verdict = VerdictCorrect
	}
	return fmt.Sprintf("%s %d %s %s", verdict, id, submitted, canonical)
}

// WithRecap appends a match recap to a code
func WithRecap(code Code, recap string) string {
	return string(code) + "\n" + recap
}

// ChallengeInvite is forwarded to the challenged endpoint
func ChallengeInvite(challenger string) string {
	return CmdChallenge + " " + challenger
}

// MatchAccepted is sent to both endpoints of an accepted challenge
func MatchAccepted(id model.MatchID) string {
	return fmt.Sprintf("%s %d", CodeOK, id)
}
