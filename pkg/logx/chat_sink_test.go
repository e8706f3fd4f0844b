package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPoster struct {
	mu    sync.Mutex
	lines []string
}

func (p *recordingPoster) PostLog(_ context.Context, text string) error {
	p.mu.Lock()
	p.lines = append(p.lines, text)
	p.mu.Unlock()
	return nil
}

func (p *recordingPoster) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()

	got := formatChatLine([]byte(`{"level":"warn","message":"feed <down>","time":"x","comp":"feed","attempt":2}`))
	if !strings.HasPrefix(got, "<b>[WARN] feed &lt;down&gt;</b>") {
		t.Fatalf("unexpected head: %q", got)
	}
	if strings.Index(got, "attempt=") > strings.Index(got, "comp=") {
		t.Fatalf("keys not sorted: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time must be omitted: %q", got)
	}
}

func TestFormatChatLineNotJSON(t *testing.T) {
	t.Parallel()

	if got := formatChatLine([]byte("  plain <text>\n")); got != "plain &lt;text&gt;" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("abcdefghijklmnop", 12); got != "abcdefghi..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestChatSinkRespectsMinLevel(t *testing.T) {
	svc, log := New(Config{Level: "debug", Chat: ChatConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}})
	defer svc.Close()

	p := &recordingPoster{}
	svc.SetChatPoster(p)

	log.Info("ignored")
	log.Warn("forwarded", String("comp", "test"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.snapshot()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	lines := p.snapshot()
	if len(lines) != 1 {
		t.Fatalf("expected 1 forwarded line, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "forwarded") {
		t.Fatalf("unexpected line %q", lines[0])
	}
}
