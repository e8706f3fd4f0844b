package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"matchbot/internal/config"
	"matchbot/internal/render"
	"matchbot/pkg/logx"
)

func validConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{Token: "123:abc"},
		Feed: config.FeedConfig{
			Host:      "https://feed.example",
			TeamNames: []string{"Storhamar", "Storhamar Hockey"},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"cron schedule", func(c *config.Config) { c.Tracker.Schedule = "*/10 * * * * *" }, ""},
		{"bad schedule", func(c *config.Config) { c.Tracker.Schedule = "sometimes" }, "tracker.schedule"},
		{"bad timezone", func(c *config.Config) { c.Tracker.Timezone = "Mars/Olympus" }, "tracker.timezone"},
		{"unknown media kind", func(c *config.Config) { c.Render.Media = map[string]string{"overtime": "x.gif"} }, "render.media"},
		{"missing token", func(c *config.Config) { c.Telegram.Token = "" }, "telegram.token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestMapMedia(t *testing.T) {
	t.Parallel()
	got, err := mapMedia(map[string]string{" Goal_Us ": "https://img/goal.gif", "match_ended": " "})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[render.KindGoalUs] != "https://img/goal.gif" {
		t.Fatalf("media = %v", got)
	}
}

func TestTickScheduleDefaults(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	spec, timeout := tickScheduleOf(cfg)
	if spec != "5s" || timeout != defaultTickTimeout {
		t.Fatalf("schedule = %q %s", spec, timeout)
	}
	cfg.Tracker.Schedule, cfg.Tracker.TickTimeout = "@every 10s", "20s"
	if spec, timeout = tickScheduleOf(cfg); spec != "@every 10s" || timeout != 20*time.Second {
		t.Fatalf("schedule = %q %s", spec, timeout)
	}
}

func TestMapLoggingNeedsLogChat(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Logging.Chat.Enabled = true
	if mapLoggingConfig(cfg).Chat.Enabled {
		t.Fatalf("chat sink enabled without a log chat")
	}
	cfg.Telegram.LogChat = "-100123:7"
	if !mapLoggingConfig(cfg).Chat.Enabled {
		t.Fatalf("chat sink should be enabled")
	}
}

func TestStopStepBounds(t *testing.T) {
	t.Parallel()
	a := &App{log: logx.Nop()}

	ran := false
	a.step(context.Background(), "quick", time.Second, func(context.Context) error {
		ran = true
		return errors.New("logged, not returned")
	})
	if !ran {
		t.Fatalf("step did not run")
	}

	start := time.Now()
	a.step(context.Background(), "stuck", 50*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("stuck step was not bounded")
	}

	a.step(context.Background(), "panics", time.Second, func(context.Context) error { panic("boom") })

	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()
	called := false
	a.step(expired, "late", time.Second, func(context.Context) error { called = true; return nil })
	if called {
		t.Fatalf("step ran past the caller's deadline")
	}
}
