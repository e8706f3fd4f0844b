package match

import (
	"testing"
	"time"
)

func TestTeamOrientation(t *testing.T) {
	t.Parallel()

	team := NewTeam([]string{" Storhamar ", "Storhamar Hockey", ""}, "")
	if team.Display != "Storhamar" || len(team.Names) != 2 {
		t.Fatalf("unexpected team %+v", team)
	}

	cases := []struct {
		name     string
		board    Scoreboard
		wantTeam int
		wantOpp  string
	}{
		{"home", Scoreboard{Home: TeamScore{"Storhamar", 2}, Away: TeamScore{"Frisk", 1}}, 2, "Frisk"},
		{"away", Scoreboard{Home: TeamScore{"Frisk", 1}, Away: TeamScore{"storhamar hockey", 3}}, 3, "Frisk"},
		{"neither", Scoreboard{Home: TeamScore{"A", 1}, Away: TeamScore{"B", 0}}, 1, "B"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := team.Orient(tc.board)
			if got.Team.Score != tc.wantTeam || got.Opponent.Name != tc.wantOpp {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestOpponent(t *testing.T) {
	t.Parallel()

	team := NewTeam([]string{"A"}, "A")
	if got := team.Opponent(Snapshot{HomeTeam: "A", AwayTeam: "B"}); got != "B" {
		t.Fatalf("got %q", got)
	}
	if got := team.Opponent(Snapshot{HomeTeam: "B", AwayTeam: "A"}); got != "B" {
		t.Fatalf("got %q", got)
	}
}

func TestPossessive(t *testing.T) {
	t.Parallel()

	if got := NewTeam([]string{"x"}, "Storhamar").Possessive(); got != "Storhamar's" {
		t.Fatalf("got %q", got)
	}
	if got := NewTeam([]string{"x"}, "Stars").Possessive(); got != "Stars'" {
		t.Fatalf("got %q", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score *Score
		want  Outcome
	}{
		{&Score{Team: TeamScore{Score: 3}, Opponent: TeamScore{Score: 1}}, OutcomeWin},
		{&Score{Team: TeamScore{Score: 0}, Opponent: TeamScore{Score: 1}}, OutcomeLoss},
		{&Score{Team: TeamScore{Score: 2}, Opponent: TeamScore{Score: 2}}, OutcomeDraw},
		{nil, OutcomeUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.score); got != tc.want {
			t.Fatalf("Classify(%+v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestParseMatch(t *testing.T) {
	t.Parallel()

	body := `{"status":"InProgress","homeTeam":{"fullName":"A"},"awayTeam":{"fullName":"B"},
		"venue":{"name":"CC Amfi","city":"Hamar"},"date":"2026-10-16T18:00:00Z","tournament":{"name":"EliteHockey Ligaen"}}`
	s, err := ParseMatch([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Status != StatusInProgress || !s.Active() || s.Venue != "CC Amfi" || s.City != "Hamar" || s.Tournament != "EliteHockey Ligaen" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if !s.StartsAt.Equal(time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("starts at %v", s.StartsAt)
	}

	if _, err := ParseMatch([]byte(`{"homeTeam":{}}`)); err == nil {
		t.Fatalf("missing status must fail")
	}
}

func TestParseMatchDates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		date string
		want time.Time
	}{
		{"2025-01-15T19:00:00Z", time.Date(2025, 1, 15, 19, 0, 0, 0, time.UTC)},
		{"2025-01-15 19:00:00", time.Date(2025, 1, 15, 19, 0, 0, 0, time.UTC)},
		{"2025-01-15T19:00:00+0100", time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)},
		{"2025-01-15 19:00:00+01:00", time.Date(2025, 1, 15, 18, 0, 0, 0, time.UTC)},
		{"2025-01-15T19:00:00.250", time.Date(2025, 1, 15, 19, 0, 0, 250e6, time.UTC)},
		{"2025-01-15T19:00", time.Date(2025, 1, 15, 19, 0, 0, 0, time.UTC)},
		{"2025-01-15", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.date, func(t *testing.T) {
			t.Parallel()
			s, err := ParseMatch([]byte(`{"status":"InProgress","date":"` + tc.date + `"}`))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !s.StartsAt.Equal(tc.want) || s.UnparsedDate != "" {
				t.Fatalf("starts at %v (unparsed %q), want %v", s.StartsAt, s.UnparsedDate, tc.want)
			}
		})
	}
}

func TestParseMatchKeepsStatusOnOddDate(t *testing.T) {
	t.Parallel()

	s, err := ParseMatch([]byte(`{"status":"InProgress","homeTeam":{"fullName":"A"},"date":"tomorrow evening"}`))
	if err != nil {
		t.Fatalf("odd date must not reject the snapshot: %v", err)
	}
	if !s.Active() || s.HomeTeam != "A" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	if !s.StartsAt.IsZero() || s.UnparsedDate != "tomorrow evening" {
		t.Fatalf("starts at %v, unparsed %q", s.StartsAt, s.UnparsedDate)
	}
}

func TestParseScoreboard(t *testing.T) {
	t.Parallel()

	b, err := ParseScoreboard([]byte(`{"homeTeam":{"team":"A","score":2},"awayTeam":{"team":"B","score":1}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b.Home != (TeamScore{"A", 2}) || b.Away != (TeamScore{"B", 1}) {
		t.Fatalf("unexpected %+v", b)
	}
	if _, err := ParseScoreboard([]byte(`{"homeTeam":{"team":"A"}}`)); err == nil {
		t.Fatalf("missing away team must fail")
	}
}

func TestParseScoreboardScoreForms(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		home    string
		want    int
		wantErr bool
	}{
		{"number", `3`, 3, false},
		{"string", `"3"`, 3, false},
		{"padded string", `" 4 "`, 4, false},
		{"null", `null`, 0, false},
		{"word", `"three"`, 0, true},
		{"fraction", `2.5`, 0, true},
		{"negative", `-1`, 0, true},
		{"object", `{}`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, err := ParseScoreboard([]byte(`{"homeTeam":{"team":"A","score":` + tc.home + `},"awayTeam":{"team":"B","score":"1"}}`))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", b)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if b.Home.Score != tc.want || b.Away.Score != 1 {
				t.Fatalf("unexpected %+v", b)
			}
		})
	}
}

func TestParseScorer(t *testing.T) {
	t.Parallel()

	info, err := ParseScorer([]byte(`{"playerinfo":{"scorer":{"fullName":"Ola Nordmann","jerseyNumber":17},
		"assists":[{"fullName":"Kari","jerseyNumber":"4"},{"fullName":""}]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Scorer != (Player{"Ola Nordmann", "17"}) {
		t.Fatalf("scorer %+v", info.Scorer)
	}
	if len(info.Assists) != 1 || info.Assists[0] != (Player{"Kari", "4"}) {
		t.Fatalf("assists %+v", info.Assists)
	}
	if _, err := ParseScorer([]byte(`{"playerinfo":{}}`)); err == nil {
		t.Fatalf("missing scorer must fail")
	}
}
