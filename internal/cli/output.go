package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mcoot/wordquizzle/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case User:
		o.printUser(v)
	case Ranking:
		o.printRanking(v)
	case Stats:
		o.printStats(v)
	case HealthResult:
		o.printHealthResult(v)
	case *model.Snapshot:
		o.printSnapshot(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// User response type (matches API)
type User struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	Online         bool   `json:"online"`
	PendingMatches []int  `json:"pending_matches"`
	DoneMatches    []int  `json:"done_matches"`
}

// RankingEntry is one leaderboard row
type RankingEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Ranking response type
type Ranking struct {
	User    string         `json:"user"`
	Entries []RankingEntry `json:"entries"`
}

// Stats response type
type Stats struct {
	Registered        int `json:"registered"`
	Online            int `json:"online"`
	PendingChallenges int `json:"pending_challenges"`
}

// HealthResult response type
type HealthResult struct {
	Status string `json:"status"`
}

func (o *Output) printUser(u User) {
	online := "no"
	if u.Online {
		online = "yes"
	}
	fmt.Fprintf(o.w, "User: %s (%d)\n", u.Name, u.ID)
	fmt.Fprintf(o.w, "Score: %d\n", u.Score)
	fmt.Fprintf(o.w, "Online: %s\n", online)
	fmt.Fprintf(o.w, "Matches: %d pending, %d done\n", len(u.PendingMatches), len(u.DoneMatches))
}

func (o *Output) printRanking(r Ranking) {
	fmt.Fprintf(o.w, "Ranking for %s:\n", r.User)
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	for i, e := range r.Entries {
		fmt.Fprintf(tw, "  %d.\t%s\t%d\n", i+1, e.Name, e.Score)
	}
	_ = tw.Flush()
}

func (o *Output) printStats(s Stats) {
	fmt.Fprintf(o.w, "Registered: %d\n", s.Registered)
	fmt.Fprintf(o.w, "Online: %d\n", s.Online)
	fmt.Fprintf(o.w, "Pending challenges: %d\n", s.PendingChallenges)
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
}

func (o *Output) printSnapshot(s *model.Snapshot) {
	fmt.Fprintf(o.w, "Snapshot v%d saved %s\n", s.Version, s.SavedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(o.w, "Users (%d):\n", len(s.Users))

	names := make(map[model.UserID]string, len(s.Users))
	for _, u := range s.Users {
		names[u.ID] = u.Name
	}

	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tNAME\tSCORE\tPENDING\tDONE\tFRIENDS")
	for _, u := range s.Users {
		friends := make([]string, 0, len(s.Friends[u.ID]))
		for _, id := range s.Friends[u.ID] {
			friends = append(friends, names[id])
		}
		sort.Strings(friends)
		fmt.Fprintf(tw, "  %d\t%s\t%d\t%d\t%d\t%s\n",
			u.ID, u.Name, u.Score, len(u.PendingMatches), len(u.DoneMatches), strings.Join(friends, ","))
	}
	_ = tw.Flush()
}
