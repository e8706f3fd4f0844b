// Package detector turns consecutive feed observations into match events.
package detector

import "matchbot/internal/match"

// State is the last observation the detector compared against.
type State struct {
	Match match.Snapshot `json:"match"`
	Score match.Score    `json:"score"`
}

// Input is one tick's observation. Score is nil when the score endpoint was
// not consulted (match not active) or could not be fetched.
type Input struct {
	Match match.Snapshot
	Score *match.Score
}

type Detector struct {
	team match.Team
}

func New(team match.Team) *Detector { return &Detector{team: team} }

// Baseline is the state assumed before anything was persisted. It never
// produces events against a scheduled match.
func (d *Detector) Baseline() State {
	return State{
		Match: match.Snapshot{Status: match.StatusScheduled},
		Score: d.team.BaselineScore(),
	}
}

// Ended reports whether moving from prev to cur finishes a match, which is
// when the caller must fetch the final score.
func Ended(prev, cur match.Status) bool {
	return prev == match.StatusInProgress && cur == match.StatusFinished
}

// Detect compares in against prev and returns the events in emission order
// together with the state to persist. It has no side effects.
func (d *Detector) Detect(prev State, in Input) ([]match.Event, State) {
	var events []match.Event
	next := State{Match: in.Match, Score: prev.Score}

	switch {
	case prev.Match.Status == match.StatusScheduled && in.Match.Status == match.StatusInProgress:
		events = append(events, match.Event{
			Kind:     match.KindMatchStarted,
			Opponent: d.team.Opponent(in.Match),
			Venue:    in.Match.Venue,
		})
	case Ended(prev.Match.Status, in.Match.Status):
		var final *match.Score
		if in.Score != nil {
			s := *in.Score
			final = &s
		}
		events = append(events, match.Event{
			Kind:     match.KindMatchEnded,
			Opponent: d.team.Opponent(in.Match),
			Score:    final,
			Outcome:  match.Classify(final),
		})
	}

	if in.Score == nil {
		return events, next
	}
	cur := *in.Score
	next.Score = cur

	if in.Match.Status != match.StatusInProgress {
		return events, next
	}
	// A lower score than before belongs to a new match: rebase silently.
	if cur.Team.Score < prev.Score.Team.Score || cur.Opponent.Score < prev.Score.Opponent.Score {
		return events, next
	}
	switch {
	case cur.Team.Score > prev.Score.Team.Score:
		events = append(events, goal(match.SideUs, cur))
	case cur.Opponent.Score > prev.Score.Opponent.Score:
		events = append(events, goal(match.SideThem, cur))
	}
	return events, next
}

func goal(side match.Side, s match.Score) match.Event {
	return match.Event{
		Kind:     match.KindGoalScored,
		Side:     side,
		Opponent: s.Opponent.Name,
		Score:    &s,
	}
}
