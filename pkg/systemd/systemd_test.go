package systemd

import (
	"context"
	"testing"
	"time"

	"matchbot/pkg/logx"
)

func TestNoopOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	for name, fn := range map[string]func() (bool, error){
		"ready":    Ready,
		"stopping": Stopping,
		"status":   func() (bool, error) { return Status("tracking") },
	} {
		sent, err := fn()
		if sent || err != nil {
			t.Fatalf("%s = %v, %v", name, sent, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := Watchdog(ctx, logx.Nop()); err != nil {
		t.Fatalf("watchdog = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatalf("watchdog should return immediately without WATCHDOG_USEC")
	}
}
