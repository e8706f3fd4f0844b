// Package match holds the live match domain: feed snapshots, the monitored
// team identity, and the events derived from snapshot changes.
package match

import (
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled  Status = "Scheduled"
	StatusInProgress Status = "InProgress"
	StatusFinished   Status = "Finished"
	StatusAborted    Status = "Aborted"
)

// Snapshot is one observation of the live match endpoint.
type Snapshot struct {
	Status     Status    `json:"status"`
	HomeTeam   string    `json:"home_team"`
	AwayTeam   string    `json:"away_team"`
	Venue      string    `json:"venue,omitempty"`
	City       string    `json:"city,omitempty"`
	Tournament string    `json:"tournament,omitempty"`
	StartsAt   time.Time `json:"starts_at,omitempty"`
	// UnparsedDate holds the feed's date when it matched no known layout.
	// StartsAt is zero then.
	UnparsedDate string `json:"-"`
}

func (s Snapshot) Active() bool { return s.Status == StatusInProgress }

// TeamScore is one side of a scoreboard.
type TeamScore struct {
	Name  string `json:"team"`
	Score int    `json:"score"`
}

// Scoreboard is the live score as the feed reports it.
type Scoreboard struct {
	Home TeamScore `json:"home"`
	Away TeamScore `json:"away"`
}

// Score is a scoreboard oriented from the monitored team's perspective.
type Score struct {
	Team     TeamScore `json:"team"`
	Opponent TeamScore `json:"opponent"`
}

// Player identifies a scorer or assisting player.
type Player struct {
	Name   string `json:"name"`
	Jersey string `json:"jersey,omitempty"`
}

// ScorerInfo describes the most recent goal.
type ScorerInfo struct {
	Scorer  Player   `json:"scorer"`
	Assists []Player `json:"assists,omitempty"`
}

func (s ScorerInfo) Empty() bool { return strings.TrimSpace(s.Scorer.Name) == "" }

// Team is the monitored team: the names the feed may use for it and the
// name shown to users.
type Team struct {
	Names   []string
	Display string
}

func NewTeam(names []string, display string) Team {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	display = strings.TrimSpace(display)
	if display == "" && len(clean) > 0 {
		display = clean[0]
	}
	return Team{Names: clean, Display: display}
}

// Is reports whether a feed team name refers to the monitored team.
func (t Team) Is(name string) bool {
	name = strings.TrimSpace(name)
	for _, n := range t.Names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Opponent returns the other side of a match snapshot. When neither side is
// the monitored team the away team is returned.
func (t Team) Opponent(s Snapshot) string {
	if t.Is(s.AwayTeam) && !t.Is(s.HomeTeam) {
		return s.HomeTeam
	}
	return s.AwayTeam
}

// Orient turns a home/away scoreboard into a team/opponent score.
func (t Team) Orient(b Scoreboard) Score {
	if t.Is(b.Away.Name) && !t.Is(b.Home.Name) {
		return Score{Team: b.Away, Opponent: b.Home}
	}
	return Score{Team: b.Home, Opponent: b.Away}
}

// Possessive renders "Name's", or "Name'" when the name ends in s.
func (t Team) Possessive() string {
	if strings.HasSuffix(strings.ToLower(t.Display), "s") {
		return t.Display + "'"
	}
	return t.Display + "'s"
}

// BaselineScore is the score assumed before anything was observed.
func (t Team) BaselineScore() Score {
	return Score{
		Team:     TeamScore{Name: t.Display},
		Opponent: TeamScore{Name: "Unknown"},
	}
}
