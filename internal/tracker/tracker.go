// Package tracker owns the live session: it runs the poll tick and the
// command operations under one mutex so they never interleave.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchbot/internal/detector"
	"matchbot/internal/dispatch"
	"matchbot/internal/eventbus"
	"matchbot/internal/match"
	"matchbot/internal/render"
	"matchbot/internal/subscriptions"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

// Feed is the live data source.
type Feed interface {
	Match(ctx context.Context) (match.Snapshot, error)
	Scoreboard(ctx context.Context) (match.Scoreboard, error)
	Scorer(ctx context.Context) (match.ScorerInfo, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, resolve dispatch.Resolver, recipients []dispatch.Recipient) dispatch.Result
	// Budget bounds a dispatch to n recipients.
	Budget(n int) time.Duration
}

// PresenceSetter publishes the bot's status line.
type PresenceSetter interface {
	SetPresence(ctx context.Context, text string) error
}

type Config struct {
	Team            match.Team
	DefaultLanguage string
	Presence        bool
}

type Deps struct {
	Feed       Feed
	Store      *detector.Store
	Subs       *subscriptions.Registry
	Renderer   *render.Renderer
	Dispatcher Dispatcher
	Presence   PresenceSetter // optional
	Metrics    *metrics.Manager
	Bus        eventbus.Bus
}

// TickReport summarizes one completed tick.
type TickReport struct {
	ID         string            `json:"id"`
	At         time.Time         `json:"at"`
	Status     match.Status      `json:"status"`
	Events     []match.Event     `json:"events,omitempty"`
	Deliveries []dispatch.Result `json:"deliveries,omitempty"`
	Took       time.Duration     `json:"took"`
	Error      string            `json:"error,omitempty"`
}

type Tracker struct {
	cfg  Config
	deps Deps
	det  *detector.Detector
	log  logx.Logger

	// mu is the session lock.
	mu           sync.Mutex
	state        detector.State
	loaded       bool
	active       bool
	presence     string
	lastTick     TickReport
	lastGoodTick time.Time
}

func New(cfg Config, deps Deps, log logx.Logger) *Tracker {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = deps.Renderer.Catalog().Default()
	}
	return &Tracker{cfg: cfg, deps: deps, det: detector.New(cfg.Team), log: log}
}

// Load reads persisted state. Tick loads lazily when Load was not called.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(ctx)
}

func (t *Tracker) loadLocked(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	st, err := t.deps.Store.Load(ctx)
	if err != nil {
		return err
	}
	t.state, t.loaded = st, true
	t.active = st.Match.Active()
	t.log.Info("state loaded", logx.String("status", string(st.Match.Status)),
		logx.Int("team_score", st.Score.Team.Score), logx.Int("opponent_score", st.Score.Opponent.Score))
	return nil
}

// Tick polls the feed once, persists the new state and notifies subscribers
// of every derived event. A feed failure leaves all state untouched.
func (t *Tracker) Tick(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	rep := TickReport{ID: uuid.NewString(), At: start}
	log := t.log.With(logx.String("tick", rep.ID))
	err := t.tickLocked(ctx, log, &rep)
	rep.Took = time.Since(start)

	result := "ok"
	switch {
	case err != nil && errors.Is(err, errFeed):
		result = "feed_error"
	case err != nil:
		result = "error"
	}
	if err != nil {
		rep.Error = err.Error()
	} else {
		t.lastGoodTick = start
	}
	t.lastTick = rep
	t.deps.Metrics.Tick(result, rep.Took)
	eventbus.Publish(t.deps.Bus, eventbus.TypeTickCompleted, rep)
	return err
}

var errFeed = errors.New("feed unavailable")

func (t *Tracker) tickLocked(ctx context.Context, log logx.Logger, rep *TickReport) error {
	if err := t.loadLocked(ctx); err != nil {
		return err
	}
	prev := t.state

	m, err := t.deps.Feed.Match(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", errFeed, err)
	}
	rep.Status = m.Status

	in := detector.Input{Match: m}
	if m.Active() || detector.Ended(prev.Match.Status, m.Status) {
		sb, err := t.deps.Feed.Scoreboard(ctx)
		if err != nil {
			log.Warn("score unavailable", logx.String("status", string(m.Status)), logx.Err(err))
		} else {
			s := t.cfg.Team.Orient(sb)
			in.Score = &s
		}
	}

	events, next := t.det.Detect(prev, in)
	for i := range events {
		if events[i].Kind == match.KindGoalScored && events[i].Side == match.SideUs {
			t.enrich(ctx, log, &events[i])
		}
	}

	if err := t.deps.Store.Save(ctx, next); err != nil {
		return err
	}
	t.state = next
	rep.Events = events

	t.active = m.Active()
	t.deps.Metrics.SetActive(t.active)
	t.pushPresenceLocked(ctx, log)

	if len(events) == 0 {
		return nil
	}
	recipients := t.recipients()
	for _, ev := range events {
		ev := ev
		t.deps.Metrics.Event(eventLabel(ev))
		eventbus.Publish(t.deps.Bus, eventbus.TypeMatchEvent, ev)
		log.Info("match event", logx.String("kind", string(ev.Kind)), logx.String("side", string(ev.Side)),
			logx.String("outcome", string(ev.Outcome)), logx.Int("recipients", len(recipients)))

		// State already moved past this event, so delivery runs on its own
		// deadline instead of whatever is left of the tick's.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.deps.Dispatcher.Budget(len(recipients)))
		res := t.deps.Dispatcher.Dispatch(dctx, func(lang string) render.Payload {
			return t.deps.Renderer.Event(ev, lang)
		}, recipients)
		cancel()
		rep.Deliveries = append(rep.Deliveries, res)
	}
	return nil
}

// enrich attaches the latest scorer. It never suppresses the goal.
func (t *Tracker) enrich(ctx context.Context, log logx.Logger, ev *match.Event) {
	info, err := t.deps.Feed.Scorer(ctx)
	if err != nil {
		log.Debug("scorer unavailable", logx.Err(err))
		return
	}
	if info.Empty() {
		return
	}
	ev.Scorer = &info
}

func (t *Tracker) pushPresenceLocked(ctx context.Context, log logx.Logger) {
	if !t.cfg.Presence || t.deps.Presence == nil {
		return
	}
	var score *match.Score
	if t.active {
		s := t.state.Score
		score = &s
	}
	text := t.deps.Renderer.Presence(t.active, score)
	if text == t.presence {
		return
	}
	if err := t.deps.Presence.SetPresence(ctx, text); err != nil {
		log.Warn("presence update failed", logx.Err(err))
		return
	}
	t.presence = text
	eventbus.Publish(t.deps.Bus, eventbus.TypePresenceChanged, text)
}

func (t *Tracker) recipients() []dispatch.Recipient {
	subs := t.deps.Subs.List()
	out := make([]dispatch.Recipient, 0, len(subs))
	for _, s := range subs {
		out = append(out, dispatch.Recipient{ID: s.Recipient, Lang: s.Language})
	}
	return out
}

func eventLabel(ev match.Event) string {
	switch ev.Kind {
	case match.KindGoalScored:
		return string(ev.Kind) + "_" + string(ev.Side)
	case match.KindMatchEnded:
		return string(ev.Kind) + "_" + string(ev.Outcome)
	default:
		return string(ev.Kind)
	}
}

// Status is a read-only view for the HTTP surface.
type Status struct {
	Active        bool           `json:"active"`
	Match         match.Snapshot `json:"match"`
	Score         match.Score    `json:"score"`
	Presence      string         `json:"presence,omitempty"`
	Subscriptions int            `json:"subscriptions"`
	LastTick      TickReport     `json:"last_tick"`
	LastGoodTick  time.Time      `json:"last_good_tick,omitempty"`
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Active:        t.active,
		Match:         t.state.Match,
		Score:         t.state.Score,
		Presence:      t.presence,
		Subscriptions: t.deps.Subs.Len(),
		LastTick:      t.lastTick,
		LastGoodTick:  t.lastGoodTick,
	}
}
