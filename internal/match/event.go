package match

type EventKind string

const (
	KindMatchStarted EventKind = "match_started"
	KindMatchEnded   EventKind = "match_ended"
	KindGoalScored   EventKind = "goal_scored"
)

type Side string

const (
	SideUs   Side = "us"
	SideThem Side = "them"
)

type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeDraw    Outcome = "draw"
	OutcomeUnknown Outcome = "unknown"
)

// Classify compares the final score. A nil score is OutcomeUnknown.
func Classify(s *Score) Outcome {
	switch {
	case s == nil:
		return OutcomeUnknown
	case s.Team.Score > s.Opponent.Score:
		return OutcomeWin
	case s.Team.Score < s.Opponent.Score:
		return OutcomeLoss
	default:
		return OutcomeDraw
	}
}

// Event is a semantic change derived from two consecutive observations.
// Kind selects which fields are meaningful:
//
//	match_started: Opponent, Venue
//	match_ended:   Score (nil when the final score was unavailable), Outcome
//	goal_scored:   Side, Score, Scorer (Us only, optional)
type Event struct {
	Kind     EventKind   `json:"kind"`
	Opponent string      `json:"opponent,omitempty"`
	Venue    string      `json:"venue,omitempty"`
	Score    *Score      `json:"score,omitempty"`
	Outcome  Outcome     `json:"outcome,omitempty"`
	Side     Side        `json:"side,omitempty"`
	Scorer   *ScorerInfo `json:"scorer,omitempty"`
}
