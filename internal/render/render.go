// Package render turns match events into localized notification payloads.
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"matchbot/internal/match"
)

type Kind string

const (
	KindMatchStarted Kind = "match_started"
	KindMatchEnded   Kind = "match_ended"
	KindGoalUs       Kind = "goal_us"
	KindGoalThem     Kind = "goal_them"
	KindNextMatch    Kind = "next_match"
	KindReply        Kind = "reply"
)

const (
	ColorGreen  = 0x00FF00
	ColorOrange = 0xFFA500
	ColorRed    = 0xFF0000
)

// Language-independent strings.
const (
	scorerLine     = "Scorer: <b>{player}</b>"
	assistLine     = "Assist: <b>{player}</b>"
	presenceLive   = "{team} {team_score} - {opponent_score} {opponent} 🎉🏒"
	presenceIdle   = "Forza {team}! 🥅🏒"
	longTimeLayout = "Monday 2 January 2006 15:04 MST"
)

// Payload is a rendered notification. Title and Body are HTML.
type Payload struct {
	Kind  Kind      `json:"kind"`
	Lang  string    `json:"lang"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Color int       `json:"color"`
	Media string    `json:"media,omitempty"`
	At    time.Time `json:"at"`
}

// Text joins title and body the way chat clients show them.
func (p Payload) Text() string {
	switch {
	case p.Title == "":
		return p.Body
	case p.Body == "":
		return "<b>" + p.Title + "</b>"
	default:
		return "<b>" + p.Title + "</b>\n" + p.Body
	}
}

type Options struct {
	Team     match.Team
	Media    map[Kind]string
	Location *time.Location
	Now      func() time.Time
}

type Renderer struct {
	cat   *Catalog
	team  match.Team
	media map[Kind]string
	loc   *time.Location
	now   func() time.Time
}

func New(cat *Catalog, opts Options) *Renderer {
	r := &Renderer{cat: cat, team: opts.Team, media: opts.Media, loc: opts.Location, now: opts.Now}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

func (r *Renderer) Catalog() *Catalog { return r.cat }

// Text renders key in lang with HTML-escaped values.
func (r *Renderer) Text(lang, key string, values map[string]string) string {
	return Format(r.cat.Template(lang, key), escapeAll(values))
}

func escapeAll(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = html.EscapeString(v)
	}
	return out
}

func (r *Renderer) payload(kind Kind, lang, titleKey, bodyKey string, color int, values map[string]string) Payload {
	return Payload{
		Kind:  kind,
		Lang:  lang,
		Title: r.Text(lang, titleKey, values),
		Body:  r.Text(lang, bodyKey, values),
		Color: color,
		Media: r.media[kind],
		At:    r.now(),
	}
}

// Reply renders a command response without a color or media.
func (r *Renderer) Reply(lang, titleKey, bodyKey string, values map[string]string) Payload {
	p := Payload{Kind: KindReply, Lang: lang, Body: r.Text(lang, bodyKey, values), At: r.now()}
	if titleKey != "" {
		p.Title = r.Text(lang, titleKey, values)
	}
	return p
}

func scoreValues(team string, s *match.Score) map[string]string {
	v := map[string]string{"team": team, "team_score": "?", "opponent_score": "?"}
	if s != nil {
		v["team_score"] = strconv.Itoa(s.Team.Score)
		v["opponent_score"] = strconv.Itoa(s.Opponent.Score)
		v["opponent"] = s.Opponent.Name
	}
	return v
}

// Event renders a match event for one language.
func (r *Renderer) Event(ev match.Event, lang string) Payload {
	values := scoreValues(r.team.Display, ev.Score)
	if ev.Opponent != "" {
		values["opponent"] = ev.Opponent
	}
	values["arena"] = ev.Venue

	switch ev.Kind {
	case match.KindMatchStarted:
		return r.payload(KindMatchStarted, lang, "match_start_title", "match_start", ColorGreen, values)
	case match.KindMatchEnded:
		key, color := "match_end", ColorOrange
		switch ev.Outcome {
		case match.OutcomeWin:
			key, color = "match_win", ColorGreen
		case match.OutcomeLoss:
			key, color = "match_loss", ColorRed
		case match.OutcomeDraw:
			key = "match_draw"
		}
		return r.payload(KindMatchEnded, lang, "match_end_title", key, color, values)
	case match.KindGoalScored:
		if ev.Side == match.SideThem {
			return r.payload(KindGoalThem, lang, "goal_away_title", "goal_away", ColorRed, values)
		}
		p := r.payload(KindGoalUs, lang, "goal_home_title", "goal_home", ColorGreen, values)
		if lines := scorerLines(ev.Scorer); lines != "" {
			p.Body += "\n" + lines
		}
		return p
	default:
		return Payload{Kind: KindReply, Lang: lang, Body: html.EscapeString(string(ev.Kind)), At: r.now()}
	}
}

func playerLabel(p match.Player) string {
	name := html.EscapeString(p.Name)
	if p.Jersey == "" {
		return name
	}
	return "#" + html.EscapeString(p.Jersey) + " " + name
}

func scorerLines(info *match.ScorerInfo) string {
	if info == nil || info.Empty() {
		return ""
	}
	lines := []string{Format(scorerLine, map[string]string{"player": playerLabel(info.Scorer)})}
	for _, a := range info.Assists {
		lines = append(lines, Format(assistLine, map[string]string{"player": playerLabel(a)}))
	}
	return strings.Join(lines, "\n")
}

// NextMatch renders an upcoming match.
func (r *Renderer) NextMatch(s match.Snapshot, lang string) Payload {
	values := map[string]string{
		"tournament_name": s.Tournament,
		"opponent":        r.team.Opponent(s),
		"team":            r.team.Display,
		"team_possessive": r.team.Possessive(),
		"arena":           s.Venue,
		"city":            s.City,
		"timestamp":       r.relative(lang, s.StartsAt),
		"long_datetime":   s.StartsAt.In(r.loc).Format(longTimeLayout),
	}
	return r.payload(KindNextMatch, lang, "next_match_title", "next_match", ColorOrange, values)
}

func (r *Renderer) relative(lang string, at time.Time) string {
	d := at.Sub(r.now())
	key := "relative_future"
	if d < 0 {
		key, d = "relative_past", -d
	}
	return Format(r.cat.Template(lang, key), map[string]string{"duration": humanDuration(d)})
}

// humanDuration keeps the two most significant units: 2d 3h, 4h 10m, 12m.
func humanDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	mins := int((d - time.Duration(hours)*time.Hour) / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}

// Presence is the bot status line: the live score while a match is active,
// a slogan otherwise. It is plain text.
func (r *Renderer) Presence(active bool, s *match.Score) string {
	if !active || s == nil {
		return Format(presenceIdle, map[string]string{"team": r.team.Display})
	}
	v := scoreValues(r.team.Display, s)
	return Format(presenceLive, v)
}
