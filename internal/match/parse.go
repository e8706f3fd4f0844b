package match

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type feedTeam struct {
	FullName string `json:"fullName"`
}

type feedMatch struct {
	Status   string   `json:"status"`
	HomeTeam feedTeam `json:"homeTeam"`
	AwayTeam feedTeam `json:"awayTeam"`
	Venue    struct {
		Name string `json:"name"`
		City string `json:"city"`
	} `json:"venue"`
	Date       string `json:"date"`
	Tournament struct {
		Name string `json:"name"`
	} `json:"tournament"`
}

// ParseMatch decodes the live match endpoint. A date in an unknown layout
// leaves StartsAt zero and is kept in UnparsedDate; status detection does
// not depend on it.
func ParseMatch(b []byte) (Snapshot, error) {
	var m feedMatch
	if err := json.Unmarshal(b, &m); err != nil {
		return Snapshot{}, fmt.Errorf("parse match: %w", err)
	}
	if strings.TrimSpace(m.Status) == "" {
		return Snapshot{}, fmt.Errorf("parse match: missing status")
	}
	s := Snapshot{
		Status:     Status(strings.TrimSpace(m.Status)),
		HomeTeam:   m.HomeTeam.FullName,
		AwayTeam:   m.AwayTeam.FullName,
		Venue:      m.Venue.Name,
		City:       m.Venue.City,
		Tournament: m.Tournament.Name,
	}
	if d := strings.TrimSpace(m.Date); d != "" {
		if t, err := parseFeedTime(d); err == nil {
			s.StartsAt = t
		} else {
			s.UnparsedDate = d
		}
	}
	return s, nil
}

// feedTimeLayouts covers ISO-8601 with either a T or a space separator, an
// optional offset with or without a colon, and a bare date. Fractional
// seconds are accepted by time.Parse after any seconds field.
var feedTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseFeedTime(v string) (time.Time, error) {
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

type feedScoreSide struct {
	Team  string          `json:"team"`
	Score json.RawMessage `json:"score"`
}

// score accepts a JSON number or a numeric string. Missing or null is 0.
func score(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("score %s: not a number", raw)
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("score %s: %w", raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("score %s: negative", raw)
	}
	return v, nil
}

func (f *feedScoreSide) teamScore() (TeamScore, error) {
	v, err := score(f.Score)
	if err != nil {
		return TeamScore{}, err
	}
	return TeamScore{Name: f.Team, Score: v}, nil
}

// ParseScoreboard decodes the live score endpoint.
func ParseScoreboard(b []byte) (Scoreboard, error) {
	var raw struct {
		HomeTeam *feedScoreSide `json:"homeTeam"`
		AwayTeam *feedScoreSide `json:"awayTeam"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Scoreboard{}, fmt.Errorf("parse score: %w", err)
	}
	if raw.HomeTeam == nil || raw.AwayTeam == nil {
		return Scoreboard{}, fmt.Errorf("parse score: missing team")
	}
	home, err := raw.HomeTeam.teamScore()
	if err != nil {
		return Scoreboard{}, fmt.Errorf("parse score: home %w", err)
	}
	away, err := raw.AwayTeam.teamScore()
	if err != nil {
		return Scoreboard{}, fmt.Errorf("parse score: away %w", err)
	}
	return Scoreboard{Home: home, Away: away}, nil
}

type feedPlayer struct {
	FullName     string          `json:"fullName"`
	JerseyNumber json.RawMessage `json:"jerseyNumber"`
}

func (p feedPlayer) player() Player {
	return Player{Name: strings.TrimSpace(p.FullName), Jersey: jersey(p.JerseyNumber)}
}

// jersey accepts numeric and string jersey numbers.
func jersey(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strconv.Quote(string(raw))
}

// ParseScorer decodes the recent goal scorer endpoint.
func ParseScorer(b []byte) (ScorerInfo, error) {
	var raw struct {
		PlayerInfo struct {
			Scorer  *feedPlayer  `json:"scorer"`
			Assists []feedPlayer `json:"assists"`
		} `json:"playerinfo"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return ScorerInfo{}, fmt.Errorf("parse scorer: %w", err)
	}
	if raw.PlayerInfo.Scorer == nil {
		return ScorerInfo{}, fmt.Errorf("parse scorer: missing scorer")
	}
	info := ScorerInfo{Scorer: raw.PlayerInfo.Scorer.player()}
	for _, a := range raw.PlayerInfo.Assists {
		if p := a.player(); p.Name != "" {
			info.Assists = append(info.Assists, p)
		}
	}
	return info, nil
}
