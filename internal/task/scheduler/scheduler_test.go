package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matchbot/internal/task/engine"
	"matchbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@every 5s", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "CRON:0 18 * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "5s", kind: SpecInterval, source: "duration", duration: 5 * time.Second},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every prefix", raw: "every: 2m", kind: SpecInterval, source: "duration", duration: 2 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind || got.Source != tt.source {
				t.Fatalf("got %+v", got)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			if got.Kind == SpecCron && got.Cron == "" {
				t.Fatalf("empty cron expression")
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5s", "00:00", "01:75", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestValidateSchedule(t *testing.T) {
	t.Parallel()
	for raw, ok := range map[string]bool{
		"5s":               true,
		"@every 5s":        true,
		"*/5 * * * * *":    true,
		"0 18 * * *":       true,
		"cron:99 * * * *":  false,
		"* * nonsense * *": false,
		"sometimes":        false,
	} {
		if err := ValidateSchedule(raw); (err == nil) != ok {
			t.Fatalf("ValidateSchedule(%q) = %v", raw, err)
		}
	}
}

type recordingEngine struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
}

func (r *recordingEngine) Enqueue(t engine.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, t)
	return r.err
}

func TestUpsertAndRunNow(t *testing.T) {
	t.Parallel()
	eng := &recordingEngine{}
	s := New(Config{Timezone: "UTC"}, eng, logx.Nop())
	job := func(context.Context) error { return nil }

	if err := s.AddSchedule("tick", "5s", time.Second, job); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSchedule("tick", "10s", 2*time.Second, job); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Spec != "@every 10s" {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}

	if err := s.RunNow("tick"); err != nil {
		t.Fatal(err)
	}
	if len(eng.tasks) != 1 {
		t.Fatalf("tasks = %d", len(eng.tasks))
	}
	got := eng.tasks[0]
	if got.Name != "tick" || got.Timeout != 2*time.Second || got.Overlap != engine.OverlapSkipIfRunning || got.State == nil {
		t.Fatalf("task = %+v", got)
	}
	if err := s.RunNow("missing"); !errors.Is(err, ErrUnknownSchedule) {
		t.Fatalf("RunNow(missing) = %v", err)
	}
	if !s.Remove("tick") || s.Remove("tick") {
		t.Fatalf("remove mismatch")
	}
}

func TestSkipHook(t *testing.T) {
	t.Parallel()
	eng := &recordingEngine{err: engine.ErrOverlapSkip}
	var skipped []string
	s := New(Config{}, eng, logx.Nop(), WithSkipHook(func(name string) { skipped = append(skipped, name) }))
	if err := s.AddInterval("tick", 5*time.Second, 0, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	_ = s.RunNow("tick")
	if len(skipped) != 1 || skipped[0] != "tick" {
		t.Fatalf("skipped = %v", skipped)
	}
}

func TestStartRegistersWithSpread(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Europe/Oslo"}, &recordingEngine{}, logx.Nop())
	if err := s.AddInterval("tick", 5*time.Second, 0, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCron("daily", "0 18 * * *", 0, func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCron("bad", "not cron", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected parse error")
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	if !snap.Running || snap.Timezone != "Europe/Oslo" || len(snap.Schedules) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	for _, it := range snap.Schedules {
		if it.Next.IsZero() {
			t.Fatalf("%s has no next run", it.Name)
		}
	}
	if sp := snap.Schedules[0].StartupSpread; sp < 0 || sp >= 5*time.Second {
		t.Fatalf("spread = %v", sp)
	}
}

func TestSpreadScheduleFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, spread := intervalWithSpread(10*time.Second, now, "x")
	first := sched.Next(now)
	if want := now.Add(10*time.Second + spread); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	if next := sched.Next(first); next.Sub(first) != 10*time.Second {
		t.Fatalf("second interval = %v", next.Sub(first))
	}
}
