package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"matchbot/internal/eventbus"
	"matchbot/internal/match"
	"matchbot/internal/runtime/supervisor"
	"matchbot/internal/tracker"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

type fixedStatus tracker.Status

func (f fixedStatus) Status() tracker.Status { return tracker.Status(f) }

func TestHealthz(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		last time.Time
		want int
	}{
		{"no tick yet", time.Time{}, http.StatusOK},
		{"fresh", time.Now(), http.StatusOK},
		{"stale", time.Now().Add(-time.Hour), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := New(Config{StaleAfter: time.Minute}, Deps{Tracker: fixedStatus{LastGoodTick: tc.last}}, logx.Nop())
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.want {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestStatusDocument(t *testing.T) {
	t.Parallel()
	reg := supervisor.NewRegistry()
	sup := supervisor.New(context.Background())
	defer sup.Cancel()
	reg.Set("tracker", sup)

	st := fixedStatus{
		Active:        true,
		Match:         match.Snapshot{Status: match.StatusInProgress, HomeTeam: "Storhamar"},
		Subscriptions: 3,
	}
	s := New(Config{}, Deps{Tracker: st, Supervisors: reg, Metrics: metrics.New()}, logx.Nop())
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var doc struct {
		Tracker struct {
			Active        bool `json:"active"`
			Subscriptions int  `json:"subscriptions"`
		} `json:"tracker"`
		Supervisors map[string]json.RawMessage `json:"supervisors"`
		Engine      json.RawMessage            `json:"engine"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if !doc.Tracker.Active || doc.Tracker.Subscriptions != 3 {
		t.Fatalf("tracker = %+v", doc.Tracker)
	}
	if _, ok := doc.Supervisors["tracker"]; !ok {
		t.Fatalf("supervisors = %v", doc.Supervisors)
	}
	if doc.Engine != nil {
		t.Fatalf("engine should be omitted without a source")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "matchbot_") {
		t.Fatalf("metrics = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST code = %d", rec.Code)
	}
}

func TestPprofIsOptIn(t *testing.T) {
	t.Parallel()
	for _, on := range []bool{false, true} {
		s := New(Config{Pprof: on}, Deps{}, logx.Nop())
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
		if got := rec.Code == http.StatusOK; got != on {
			t.Fatalf("pprof=%v: code %d", on, rec.Code)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()
	s := New(Config{AllowedOrigins: []string{"https://ops.example"}}, Deps{}, logx.Nop())
	for origin, want := range map[string]bool{
		"":                     true,
		"https://ops.example":  true,
		"https://evil.example": false,
	} {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := s.checkOrigin(r); got != want {
			t.Fatalf("checkOrigin(%q) = %v", origin, got)
		}
	}
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	s := New(Config{}, Deps{Bus: bus}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.hub.Run(ctx) }()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var ev eventbus.Event
	if err := conn.ReadJSON(&ev); err != nil || ev.Type != "connected" {
		t.Fatalf("hello = %+v, %v", ev, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	eventbus.Publish(bus, eventbus.TypeMatchEvent, map[string]string{"kind": "goal_scored"})
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != eventbus.TypeMatchEvent {
		t.Fatalf("event = %+v", ev)
	}
}
