// Package commands implements the chat commands on top of the tracker:
// subscribe, set_language, channels, next_match and help, each under an
// English and a Norwegian name.
package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"matchbot/internal/dispatch"
	"matchbot/internal/render"
	"matchbot/internal/subscriptions"
	"matchbot/internal/tracker"
	"matchbot/internal/transport/telegram/router"
)

// Sender delivers a rendered reply to a recipient key.
type Sender interface {
	SendPayload(ctx context.Context, recipient string, p render.Payload) (dispatch.Receipt, error)
}

type Deps struct {
	Tracker   *tracker.Tracker
	Renderer  *render.Renderer
	Directory tracker.Directory
	Sender    Sender
}

type spec struct {
	key     string
	names   map[string]string // language -> command name
	usage   string
	access  router.Access
	timeout time.Duration
}

var specs = []spec{
	{key: "subscribe", names: map[string]string{"en": "subscribe", "no": "abonner"}, usage: "[language]", timeout: 15 * time.Second},
	{key: "set_language", names: map[string]string{"en": "set_language", "no": "endre_sprak"}, usage: "<language>", timeout: 15 * time.Second},
	{key: "channels", names: map[string]string{"en": "channels", "no": "kanaler"}, access: router.AccessOwnerOnly, timeout: time.Minute},
	{key: "next_match", names: map[string]string{"en": "next_match", "no": "neste_kamp"}, timeout: 20 * time.Second},
	{key: "help", names: map[string]string{"en": "help", "no": "hjelp"}, timeout: 10 * time.Second},
}

type handlers struct {
	Deps
	cmds []router.Command
}

// Build returns every command under each of its localized names.
// Descriptions come from the "cmd_<key>" catalog entries.
func Build(d Deps) []router.Command {
	h := &handlers{Deps: d}
	byKey := map[string]router.HandlerFunc{
		"subscribe":    h.subscribe,
		"set_language": h.setLanguage,
		"channels":     h.channels,
		"next_match":   h.nextMatch,
		"help":         h.help,
	}
	for _, s := range specs {
		for lang, name := range s.names {
			h.cmds = append(h.cmds, router.Command{
				Name:        name,
				Lang:        lang,
				Description: d.Renderer.Text(lang, "cmd_"+s.key, nil),
				Usage:       strings.TrimSpace("/" + name + " " + s.usage),
				Access:      s.access,
				Timeout:     s.timeout,
				Handle:      withActor(byKey[s.key]),
			})
		}
	}
	return h.cmds
}

// Texts localizes the router's own replies.
func Texts(t *tracker.Tracker, r *render.Renderer) router.TextFunc {
	return func(recipient, key string) string {
		return r.Text(t.ReplyLanguage(recipient, ""), key, nil)
	}
}

// withActor records who issued the command for the subscription audit log.
func withActor(next router.HandlerFunc) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		a := subscriptions.Actor{ID: req.FromID}
		if req.Message != nil {
			a.Name = req.Message.FromUsername
		}
		return next(subscriptions.WithActor(ctx, a), req)
	}
}

// primaryLang names the canonical command set. Those names carry no language
// of their own and defer to the configured default.
const primaryLang = "en"

func aliasLang(req *router.Request) string {
	if req.Command.Lang == primaryLang {
		return ""
	}
	return req.Command.Lang
}

func (h *handlers) lang(req *router.Request) string {
	return h.Tracker.ReplyLanguage(req.Recipient, aliasLang(req))
}

func (h *handlers) send(ctx context.Context, req *router.Request, p render.Payload) error {
	if _, err := h.Sender.SendPayload(ctx, req.Recipient, p); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

func (h *handlers) reply(ctx context.Context, req *router.Request, lang, key string, values map[string]string) error {
	return h.send(ctx, req, h.Renderer.Reply(lang, "", key, values))
}

// fail answers with the generic failure text and returns cause for logging.
// Transport details never reach the chat.
func (h *handlers) fail(ctx context.Context, req *router.Request, cause error) error {
	if err := h.reply(ctx, req, h.lang(req), "command_failed", nil); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (h *handlers) unsupported(ctx context.Context, req *router.Request, e *tracker.UnsupportedLanguageError) error {
	return h.reply(ctx, req, h.lang(req), "unsupported_language", map[string]string{
		"language":  e.Language,
		"languages": strings.Join(e.Supported, ", "),
	})
}

func firstArg(req *router.Request) string {
	if len(req.Args) == 0 {
		return ""
	}
	return req.Args[0]
}

func (h *handlers) subscribe(ctx context.Context, req *router.Request) error {
	lang := firstArg(req)
	if lang == "" {
		lang = aliasLang(req)
	}
	on, replyLang, err := h.Tracker.Subscribe(ctx, req.Recipient, lang)
	var unsup *tracker.UnsupportedLanguageError
	switch {
	case errors.As(err, &unsup):
		return h.unsupported(ctx, req, unsup)
	case err != nil:
		return h.fail(ctx, req, err)
	}
	key := "unsubscribe"
	if on {
		key = "subscribe"
	}
	return h.reply(ctx, req, replyLang, key, map[string]string{"team": h.Tracker.TeamName()})
}

func (h *handlers) setLanguage(ctx context.Context, req *router.Request) error {
	lang, err := h.Tracker.SetLanguage(ctx, req.Recipient, firstArg(req))
	var unsup *tracker.UnsupportedLanguageError
	switch {
	case errors.As(err, &unsup):
		return h.unsupported(ctx, req, unsup)
	case err != nil:
		return h.fail(ctx, req, err)
	}
	return h.reply(ctx, req, lang, "language_set", nil)
}

func (h *handlers) channels(ctx context.Context, req *router.Request) error {
	res, err := h.Tracker.Channels(ctx, h.Directory)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	lang := h.lang(req)
	if len(res.Active) == 0 && len(res.Pruned) == 0 {
		return h.reply(ctx, req, lang, "no_active_channels", nil)
	}

	lines := make([]string, 0, len(res.Active))
	for _, c := range res.Active {
		title := c.Title
		if title == "" {
			title = c.Recipient
		}
		lines = append(lines, "• "+title+" ("+c.Recipient+")")
	}
	body := "no_active_channels"
	if len(lines) > 0 {
		body = "active_channels"
	}
	p := h.Renderer.Reply(lang, "active_channels_title", body, map[string]string{
		"active_channels": strings.Join(lines, "\n"),
	})
	if len(res.Pruned) > 0 {
		p.Body += "\n\n" + h.Renderer.Text(lang, "pruned_channels", map[string]string{"count": strconv.Itoa(len(res.Pruned))})
	}
	return h.send(ctx, req, p)
}

func (h *handlers) nextMatch(ctx context.Context, req *router.Request) error {
	lang := h.lang(req)
	p, err := h.Tracker.NextMatch(ctx, lang)
	switch {
	case errors.Is(err, tracker.ErrNoActiveMatch):
		return h.reply(ctx, req, lang, "no_next_match", nil)
	case err != nil:
		return h.fail(ctx, req, err)
	}
	return h.send(ctx, req, p)
}

func (h *handlers) help(ctx context.Context, req *router.Request) error {
	lang := h.lang(req)
	listed := h.commandsIn(lang)
	if len(listed) == 0 {
		listed = h.commandsIn(render.FallbackLanguage)
	}

	lines := make([]string, 0, len(listed))
	for _, c := range listed {
		line := "<code>" + html.EscapeString(c.Usage) + "</code> " + html.EscapeString(c.Description)
		if c.Access == router.AccessOwnerOnly {
			line = "🔒 " + line
		}
		lines = append(lines, line)
	}
	p := render.Payload{
		Kind:  render.KindReply,
		Lang:  lang,
		Title: h.Renderer.Text(lang, "help_title", nil),
		Body:  strings.Join(lines, "\n"),
		At:    time.Now(),
	}
	return h.send(ctx, req, p)
}

// commandsIn lists the commands named in lang, in registration order.
func (h *handlers) commandsIn(lang string) []router.Command {
	var out []router.Command
	for _, c := range h.cmds {
		if c.Lang == lang {
			out = append(out, c)
		}
	}
	return out
}
