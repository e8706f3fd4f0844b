package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"matchbot/internal/match"
	"matchbot/internal/render"
	"matchbot/internal/transport"
	"matchbot/pkg/logx"
)

// ErrNoActiveMatch means the feed has no scheduled match to announce.
var ErrNoActiveMatch = errors.New("no scheduled match")

// UnsupportedLanguageError is returned for a language without a catalog.
type UnsupportedLanguageError struct {
	Language  string
	Supported []string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q (available: %s)", e.Language, strings.Join(e.Supported, ", "))
}

// Directory resolves recipients on the chat platform. An error wrapping
// transport.ErrRecipientGone means the recipient will never be reachable.
type Directory interface {
	LookupChat(ctx context.Context, recipient string) (transport.ChatInfo, error)
}

// Language is the reply language for recipient.
func (t *Tracker) Language(recipient string) string {
	if lang, ok := t.deps.Subs.Language(recipient); ok {
		return lang
	}
	return t.cfg.DefaultLanguage
}

// ReplyLanguage is the subscribed language of recipient, else hint when it
// has a catalog, else the default.
func (t *Tracker) ReplyLanguage(recipient, hint string) string {
	if lang, ok := t.deps.Subs.Language(recipient); ok {
		return lang
	}
	if hint = render.NormalizeLanguage(hint); hint != "" && t.deps.Renderer.Catalog().Supports(hint) {
		return hint
	}
	return t.cfg.DefaultLanguage
}

// TeamName is the display name of the monitored team.
func (t *Tracker) TeamName() string { return t.cfg.Team.Display }

func (t *Tracker) resolveLanguage(lang string) (string, error) {
	lang = render.NormalizeLanguage(lang)
	if lang == "" {
		return t.cfg.DefaultLanguage, nil
	}
	cat := t.deps.Renderer.Catalog()
	if !cat.Supports(lang) {
		return "", &UnsupportedLanguageError{Language: lang, Supported: cat.Languages()}
	}
	return lang, nil
}

// Subscribe toggles recipient. lang may be empty for the default language.
// It returns the new state and the language replies should use.
func (t *Tracker) Subscribe(ctx context.Context, recipient, lang string) (bool, string, error) {
	resolved, err := t.resolveLanguage(lang)
	if err != nil {
		return false, "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	prevLang := t.Language(recipient)
	on, err := t.deps.Subs.Toggle(ctx, recipient, resolved)
	if err != nil {
		return false, "", err
	}
	if !on {
		return false, prevLang, nil
	}
	return true, resolved, nil
}

// SetLanguage changes recipient's language, subscribing it if needed.
func (t *Tracker) SetLanguage(ctx context.Context, recipient, lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		return "", &UnsupportedLanguageError{Supported: t.deps.Renderer.Catalog().Languages()}
	}
	resolved, err := t.resolveLanguage(lang)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.deps.Subs.SetLanguage(ctx, recipient, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// ChannelsResult lists reachable subscriptions.
type ChannelsResult struct {
	Active []transport.ChatInfo
	Pruned []string
	// Unknown counts recipients whose lookup failed transiently; they are
	// kept but not listed.
	Unknown int
}

// Channels checks every subscription against dir and drops the ones the
// platform reports as gone.
func (t *Tracker) Channels(ctx context.Context, dir Directory) (ChannelsResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res ChannelsResult
	for _, s := range t.deps.Subs.List() {
		info, err := dir.LookupChat(ctx, s.Recipient)
		switch {
		case err == nil:
			res.Active = append(res.Active, info)
		case errors.Is(err, transport.ErrRecipientGone):
			res.Pruned = append(res.Pruned, s.Recipient)
		default:
			res.Unknown++
			t.log.Debug("chat lookup failed", logx.Recipient(s.Recipient), logx.Err(err))
		}
	}
	if len(res.Pruned) > 0 {
		if _, err := t.deps.Subs.Remove(ctx, res.Pruned...); err != nil {
			return res, err
		}
		t.log.Info("pruned unreachable subscriptions", logx.Strings("recipients", res.Pruned))
	}
	return res, nil
}

// NextMatch renders the upcoming match, or ErrNoActiveMatch when the feed
// shows no match in the Scheduled state.
func (t *Tracker) NextMatch(ctx context.Context, lang string) (render.Payload, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, err := t.deps.Feed.Match(ctx)
	if err != nil {
		return render.Payload{}, err
	}
	if m.Status != match.StatusScheduled {
		return render.Payload{}, ErrNoActiveMatch
	}
	return t.deps.Renderer.NextMatch(m, lang), nil
}
