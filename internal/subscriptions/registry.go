// Package subscriptions keeps the recipient → language map. Every mutation
// is written to storage before it becomes visible.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"matchbot/internal/eventbus"
	"matchbot/internal/storage"
	"matchbot/pkg/logx"
	"matchbot/pkg/metrics"
)

// Key is the storage document holding every subscription.
const Key = "subscriptions"

var (
	ErrEmptyRecipient = errors.New("empty recipient")
	ErrNotLoaded      = errors.New("subscriptions not loaded")
)

type Subscription struct {
	Recipient string `json:"recipient"`
	Language  string `json:"language"`
}

// Change is published on the event bus after a mutation.
type Change struct {
	Recipient  string `json:"recipient"`
	Action     string `json:"action"`
	Language   string `json:"language,omitempty"`
	Subscribed bool   `json:"subscribed"`
}

type Registry struct {
	db      storage.Store
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Manager

	mu     sync.RWMutex
	subs   map[string]string
	loaded bool
}

type Option func(*Registry)

func WithBus(b eventbus.Bus) Option { return func(r *Registry) { r.bus = b } }
func WithMetrics(m *metrics.Manager) Option { return func(r *Registry) { r.metrics = m } }

func New(db storage.Store, log logx.Logger, opts ...Option) *Registry {
	r := &Registry{db: db, log: log, subs: map[string]string{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Load reads the persisted map. A missing document is an empty registry.
func (r *Registry) Load(ctx context.Context) error {
	m := map[string]string{}
	if _, err := storage.GetJSON(ctx, r.db, Key, &m); err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	r.mu.Lock()
	r.subs = m
	r.loaded = true
	r.mu.Unlock()
	r.metrics.SetSubscriptions(len(m))
	r.log.Info("subscriptions loaded", logx.Int("count", len(m)))
	return nil
}

// List returns every subscription ordered by recipient.
func (r *Registry) List() []Subscription {
	r.mu.RLock()
	out := make([]Subscription, 0, len(r.subs))
	for id, lang := range r.subs {
		out = append(out, Subscription{Recipient: id, Language: lang})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Recipient < out[j].Recipient })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Registry) Language(recipient string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.subs[recipient]
	return lang, ok
}

// Toggle subscribes recipient with lang, or unsubscribes it when already
// present. It returns the new subscribed state.
func (r *Registry) Toggle(ctx context.Context, recipient, lang string) (bool, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return false, ErrEmptyRecipient
	}
	var subscribed bool
	err := r.mutate(ctx, func(m map[string]string) (string, string) {
		if _, ok := m[recipient]; ok {
			delete(m, recipient)
			return "unsubscribe", ""
		}
		m[recipient] = lang
		subscribed = true
		return "subscribe", lang
	}, recipient)
	return subscribed, err
}

// SetLanguage changes the language of recipient, subscribing it when it has
// no entry yet.
func (r *Registry) SetLanguage(ctx context.Context, recipient, lang string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ErrEmptyRecipient
	}
	return r.mutate(ctx, func(m map[string]string) (string, string) {
		m[recipient] = lang
		return "set_language", lang
	}, recipient)
}

// Remove drops recipients and reports how many were present.
func (r *Registry) Remove(ctx context.Context, recipients ...string) (int, error) {
	removed := 0
	if len(recipients) == 0 {
		return 0, nil
	}
	err := r.mutate(ctx, func(m map[string]string) (string, string) {
		for _, id := range recipients {
			if _, ok := m[id]; ok {
				delete(m, id)
				removed++
			}
		}
		return "remove", ""
	}, strings.Join(recipients, ","))
	return removed, err
}

// mutate applies fn to a copy, persists the copy and only then swaps it in.
func (r *Registry) mutate(ctx context.Context, fn func(m map[string]string) (action, lang string), recipient string) error {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return ErrNotLoaded
	}
	next := make(map[string]string, len(r.subs)+1)
	for k, v := range r.subs {
		next[k] = v
	}
	action, lang := fn(next)
	if err := storage.PutJSON(ctx, r.db, Key, next); err != nil {
		r.mu.Unlock()
		r.audit(ctx, recipient, action, lang, err)
		return fmt.Errorf("save subscriptions: %w", err)
	}
	r.subs = next
	n := len(next)
	_, subscribed := next[recipient]
	r.mu.Unlock()

	r.audit(ctx, recipient, action, lang, nil)
	r.metrics.SetSubscriptions(n)
	r.log.Info("subscriptions changed",
		logx.Recipient(recipient),
		logx.String("action", action),
		logx.Lang(lang),
		logx.Int("count", n),
	)
	eventbus.Publish(r.bus, eventbus.TypeSubscription, Change{Recipient: recipient, Action: action, Language: lang, Subscribed: subscribed})
	return nil
}

func (r *Registry) audit(ctx context.Context, recipient, action, lang string, cause error) {
	a := ActorFrom(ctx)
	e := storage.AuditEntry{
		ActorID:   a.ID,
		ActorName: a.Name,
		Recipient: recipient,
		Action:    action,
		Detail:    lang,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := r.db.AppendAudit(ctx, e); err != nil {
		r.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}
