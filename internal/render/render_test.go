package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"matchbot/internal/match"
)

func newRenderer(t *testing.T, def string) *Renderer {
	t.Helper()
	cat, err := LoadCatalog(def, "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	return New(cat, Options{
		Team:  match.NewTeam([]string{"Storhamar"}, "Storhamar"),
		Media: map[Kind]string{KindGoalUs: "https://img.example/goal.gif"},
		Now:   func() time.Time { return now },
	})
}

func score(us, them int) *match.Score {
	return &match.Score{Team: match.TeamScore{Name: "Storhamar", Score: us}, Opponent: match.TeamScore{Name: "Frisk <Asker>", Score: them}}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, tmpl, want string
		values           map[string]string
	}{
		{"simple", "Hi {name}!", "Hi Bob!", map[string]string{"name": "Bob"}},
		{"repeated", "{a}-{a}", "x-x", map[string]string{"a": "x"}},
		{"missing degrades to raw", "Hi {name} {other}", "Hi {name} {other}", map[string]string{"name": "Bob"}},
		{"non identifier braces kept", "{ not } {a}", "{ not } 1", map[string]string{"a": "1"}},
		{"unterminated", "{a} {b", "1 {b", map[string]string{"a": "1"}},
		{"empty", "", "", nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Format(tc.tmpl, tc.values); got != tc.want {
				t.Fatalf("Format(%q) = %q, want %q", tc.tmpl, got, tc.want)
			}
		})
	}
}

func TestCatalogFallback(t *testing.T) {
	t.Parallel()

	cat, err := LoadCatalog("no", "")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if got, _ := cat.Lookup("no", "unsubscribe"); got != "Kanalen er nå avabonnert." {
		t.Fatalf("no lookup = %q", got)
	}
	// "no" has no active_channels key; English is the last resort
	if got, ok := cat.Lookup("no", "active_channels"); !ok || got != "{active_channels}" {
		t.Fatalf("fallback = %q ok=%v", got, ok)
	}
	if got, _ := cat.Lookup("de", "no_next_match"); got != "Ingen planlagte kamper funnet" {
		t.Fatalf("unknown language must use default, got %q", got)
	}
	if got := cat.Template("en", "does_not_exist"); got != "does_not_exist" {
		t.Fatalf("template = %q", got)
	}
	if !cat.Supports(" EN ") || cat.Supports("de") {
		t.Fatalf("Supports mismatch")
	}
	if strings.Join(cat.Languages(), ",") != "en,no" {
		t.Fatalf("languages = %v", cat.Languages())
	}
}

func TestCatalogOverrideDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sv.yaml"), []byte("subscribe: \"Kanalen prenumererar nu.\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadCatalog("en", dir)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if got, _ := cat.Lookup("sv", "subscribe"); got != "Kanalen prenumererar nu." {
		t.Fatalf("sv = %q", got)
	}
	if got, _ := cat.Lookup("sv", "unsubscribe"); got != "Channel is now unsubscribed." {
		t.Fatalf("sv fallback = %q", got)
	}
}

func TestLoadCatalogUnknownDefault(t *testing.T) {
	t.Parallel()
	if _, err := LoadCatalog("xx", ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderEvents(t *testing.T) {
	t.Parallel()
	r := newRenderer(t, "en")

	start := r.Event(match.Event{Kind: match.KindMatchStarted, Opponent: "Frisk", Venue: "CC Amfi"}, "en")
	if start.Kind != KindMatchStarted || start.Color != ColorGreen || start.Title != "Match started 🏒" {
		t.Fatalf("start = %+v", start)
	}
	if start.Body != "<b>Storhamar</b> vs <b>Frisk</b> are now playing in <b>CC Amfi</b>" {
		t.Fatalf("start body = %q", start.Body)
	}

	goal := r.Event(match.Event{
		Kind: match.KindGoalScored, Side: match.SideUs, Score: score(2, 1),
		Scorer: &match.ScorerInfo{Scorer: match.Player{Name: "Ola", Jersey: "17"}, Assists: []match.Player{{Name: "Kari"}}},
	}, "en")
	wantBody := "The score is now <b>Storhamar 2 - 1 Frisk &lt;Asker&gt;</b>\nScorer: <b>#17 Ola</b>\nAssist: <b>Kari</b>"
	if goal.Body != wantBody {
		t.Fatalf("goal body = %q", goal.Body)
	}
	if goal.Media != "https://img.example/goal.gif" || goal.Color != ColorGreen {
		t.Fatalf("goal = %+v", goal)
	}

	them := r.Event(match.Event{Kind: match.KindGoalScored, Side: match.SideThem, Score: score(2, 2), Opponent: "Frisk"}, "no")
	if them.Kind != KindGoalThem || them.Color != ColorRed || them.Title != "Frisk scoret 😓" {
		t.Fatalf("them = %+v", them)
	}
}

func TestRenderMatchEnded(t *testing.T) {
	t.Parallel()
	r := newRenderer(t, "en")

	cases := []struct {
		outcome match.Outcome
		score   *match.Score
		color   int
		contain string
	}{
		{match.OutcomeWin, score(3, 1), ColorGreen, "Congratulations"},
		{match.OutcomeLoss, score(1, 3), ColorRed, "Better luck"},
		{match.OutcomeDraw, score(2, 2), ColorOrange, "draw"},
		{match.OutcomeUnknown, nil, ColorOrange, "Storhamar ? - ? Frisk"},
	}
	for _, tc := range cases {
		p := r.Event(match.Event{Kind: match.KindMatchEnded, Opponent: "Frisk", Outcome: tc.outcome, Score: tc.score}, "en")
		if p.Color != tc.color || !strings.Contains(p.Body, tc.contain) {
			t.Fatalf("%s: %+v", tc.outcome, p)
		}
	}
}

func TestRenderNeverFailsOnMissingPlaceholder(t *testing.T) {
	t.Parallel()
	r := newRenderer(t, "en")

	got := r.Text("en", "subscribe", nil)
	if got == "" || !strings.Contains(got, "{team}") {
		t.Fatalf("expected raw template, got %q", got)
	}
}

func TestNextMatchAndPresence(t *testing.T) {
	t.Parallel()
	r := newRenderer(t, "en")

	p := r.NextMatch(match.Snapshot{
		Status: match.StatusScheduled, HomeTeam: "Frisk", AwayTeam: "Storhamar",
		Venue: "Varner Arena", City: "Asker", Tournament: "Ligaen",
		StartsAt: time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC),
	}, "en")
	if p.Title != "[Ligaen] Storhamar's next match" {
		t.Fatalf("title = %q", p.Title)
	}
	if !strings.Contains(p.Body, "<b>Frisk</b> will play in <b>Varner Arena</b> in 2d 3h") {
		t.Fatalf("body = %q", p.Body)
	}
	if !strings.Contains(p.Body, "Sunday 18 October 2026 15:30 UTC") {
		t.Fatalf("long date missing: %q", p.Body)
	}

	if got := r.Presence(true, score(1, 0)); got != "Storhamar 1 - 0 Frisk <Asker> 🎉🏒" {
		t.Fatalf("presence = %q", got)
	}
	if got := r.Presence(false, nil); got != "Forza Storhamar! 🥅🏒" {
		t.Fatalf("idle presence = %q", got)
	}
}

func TestHumanDuration(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		12 * time.Minute:             "12m",
		4*time.Hour + 10*time.Minute: "4h 10m",
		51 * time.Hour:               "2d 3h",
	}
	for d, want := range cases {
		if got := humanDuration(d); got != want {
			t.Fatalf("humanDuration(%v) = %q, want %q", d, got, want)
		}
	}
}
