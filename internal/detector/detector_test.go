package detector

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"matchbot/internal/match"
)

func snap(status match.Status) match.Snapshot {
	return match.Snapshot{Status: status, HomeTeam: "A", AwayTeam: "B", Venue: "X"}
}

func score(us, them int) *match.Score {
	return &match.Score{
		Team:     match.TeamScore{Name: "A", Score: us},
		Opponent: match.TeamScore{Name: "B", Score: them},
	}
}

func kinds(evs []match.Event) []match.EventKind {
	out := make([]match.EventKind, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Kind)
	}
	return out
}

func TestDetect(t *testing.T) {
	d := New(match.NewTeam([]string{"A"}, "A"))

	Convey("Given a cold start baseline", t, func() {
		prev := d.Baseline()

		Convey("a scheduled match yields nothing", func() {
			evs, next := d.Detect(prev, Input{Match: snap(match.StatusScheduled)})
			So(evs, ShouldBeEmpty)
			So(next.Match.Status, ShouldEqual, match.StatusScheduled)
			So(next.Score.Opponent.Name, ShouldEqual, "Unknown")
		})

		Convey("Scheduled to InProgress starts the match against the away side", func() {
			evs, next := d.Detect(prev, Input{Match: snap(match.StatusInProgress), Score: score(0, 0)})
			So(evs, ShouldHaveLength, 1)
			So(evs[0].Kind, ShouldEqual, match.KindMatchStarted)
			So(evs[0].Opponent, ShouldEqual, "B")
			So(evs[0].Venue, ShouldEqual, "X")
			So(next.Match.Status, ShouldEqual, match.StatusInProgress)
		})
	})

	Convey("Given a match in progress at 1-0", t, func() {
		prev := State{Match: snap(match.StatusInProgress), Score: *score(1, 0)}

		Convey("an opponent goal emits GoalScored{them} and persists 1-1", func() {
			evs, next := d.Detect(prev, Input{Match: snap(match.StatusInProgress), Score: score(1, 1)})
			So(evs, ShouldHaveLength, 1)
			So(evs[0].Side, ShouldEqual, match.SideThem)
			So(next.Score.Team.Score, ShouldEqual, 1)
			So(next.Score.Opponent.Score, ShouldEqual, 1)
		})

		Convey("both sides increasing in one tick reports only our goal", func() {
			evs, _ := d.Detect(prev, Input{Match: snap(match.StatusInProgress), Score: score(2, 1)})
			So(evs, ShouldHaveLength, 1)
			So(evs[0].Side, ShouldEqual, match.SideUs)
		})

		Convey("the same snapshot twice yields nothing", func() {
			evs, next := d.Detect(prev, Input{Match: snap(match.StatusInProgress), Score: score(1, 0)})
			So(evs, ShouldBeEmpty)
			So(next, ShouldResemble, prev)
		})

		Convey("a lower score resets the baseline without events", func() {
			evs, next := d.Detect(prev, Input{Match: snap(match.StatusInProgress), Score: score(0, 0)})
			So(evs, ShouldBeEmpty)
			So(next.Score.Team.Score, ShouldEqual, 0)
		})

		Convey("a missing score keeps the previous score", func() {
			evs, next := d.Detect(prev, Input{Match: snap(match.StatusInProgress)})
			So(evs, ShouldBeEmpty)
			So(next.Score, ShouldResemble, prev.Score)
		})

		Convey("finishing classifies the final score", func() {
			evs, _ := d.Detect(prev, Input{Match: snap(match.StatusFinished), Score: score(3, 1)})
			So(kinds(evs), ShouldResemble, []match.EventKind{match.KindMatchEnded})
			So(evs[0].Outcome, ShouldEqual, match.OutcomeWin)

			evs, _ = d.Detect(prev, Input{Match: snap(match.StatusFinished), Score: score(2, 2)})
			So(evs[0].Outcome, ShouldEqual, match.OutcomeDraw)

			evs, _ = d.Detect(prev, Input{Match: snap(match.StatusFinished), Score: score(0, 4)})
			So(evs[0].Outcome, ShouldEqual, match.OutcomeLoss)
		})

		Convey("finishing without a final score still ends the match", func() {
			evs, _ := d.Detect(prev, Input{Match: snap(match.StatusFinished)})
			So(evs, ShouldHaveLength, 1)
			So(evs[0].Score, ShouldBeNil)
			So(evs[0].Outcome, ShouldEqual, match.OutcomeUnknown)
		})

		Convey("aborting emits nothing", func() {
			evs, _ := d.Detect(prev, Input{Match: snap(match.StatusAborted)})
			So(evs, ShouldBeEmpty)
		})
	})
}

func TestDetectSequences(t *testing.T) {
	d := New(match.NewTeam([]string{"A"}, "A"))

	Convey("A strict Scheduled, InProgress, Finished sequence emits one start and one end", t, func() {
		st := d.Baseline()
		var all []match.Event
		for _, in := range []Input{
			{Match: snap(match.StatusScheduled)},
			{Match: snap(match.StatusScheduled)},
			{Match: snap(match.StatusInProgress), Score: score(0, 0)},
			{Match: snap(match.StatusInProgress), Score: score(0, 0)},
			{Match: snap(match.StatusFinished), Score: score(0, 0)},
			{Match: snap(match.StatusFinished)},
		} {
			var evs []match.Event
			evs, st = d.Detect(st, in)
			all = append(all, evs...)
		}
		So(kinds(all), ShouldResemble, []match.EventKind{match.KindMatchStarted, match.KindMatchEnded})
	})

	Convey("Goal events match the number of strict increases", t, func() {
		st := State{Match: snap(match.StatusInProgress), Score: *score(0, 0)}
		series := [][2]int{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {2, 1}, {2, 1}, {3, 1}, {3, 2}}
		increases := 0
		goals := 0
		prev := [2]int{0, 0}
		for _, s := range series {
			if s[0] > prev[0] || s[1] > prev[1] {
				increases++
			}
			prev = s
			var evs []match.Event
			evs, st = d.Detect(st, Input{Match: snap(match.StatusInProgress), Score: score(s[0], s[1])})
			goals += len(evs)
		}
		So(goals, ShouldEqual, increases)
		So(goals, ShouldEqual, 5)
	})
}
