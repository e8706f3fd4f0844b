package adapter

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"matchbot/internal/dispatch"
	"matchbot/internal/render"
	kit "matchbot/internal/transport"
)

const (
	telegramTextLimit    = 4000
	telegramCaptionLimit = 1024

	mediaRefPhoto     = "tg-photo:"
	mediaRefAnimation = "tg-animation:"
)

// goneErrors are Bot API answers after which a chat never accepts messages
// from this bot again.
var goneErrors = []error{
	tele.ErrChatNotFound,
	tele.ErrBlockedByUser,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
	tele.ErrKickedFromChannel,
	tele.ErrUserIsDeactivated,
	tele.ErrNotStartedByUser,
}

// splitTelegramText splits long messages into chunks Telegram accepts. It
// prefers newline boundaries and, for HTML, avoids cutting inside a tag.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	html := strings.EqualFold(parseMode, tele.ModeHTML)

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			if cut := lastNewline(rs, start, end, limit/3); cut > 0 {
				end = cut
			}
			if html {
				if open := danglingTag(rs, start, end); open > start+1 {
					end = open
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// lastNewline returns the index after the last newline in rs[start:end] that
// leaves a chunk of at least minChunk runes, or -1.
func lastNewline(rs []rune, start, end, minChunk int) int {
	for i := end - 1; i > start; i-- {
		if rs[i] == '\n' && i-start >= minChunk {
			return i + 1
		}
	}
	return -1
}

// danglingTag returns the position of a '<' in rs[start:end] that has no
// closing '>', or -1.
func danglingTag(rs []rune, start, end int) int {
	open, closed := -1, -1
	for i := start; i < end; i++ {
		switch rs[i] {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed {
		return open
	}
	return -1
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		msg, err := call(ctx, func() (*tele.Message, error) { return a.bot.Send(chat, chunk, sendOpt) })
		if err != nil {
			return first, classify(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// SendPayload delivers a rendered notification to one recipient key. Media
// goes out as a photo or animation with the text as caption; the returned
// MediaRef lets later recipients reuse the uploaded file.
func (a *Adapter) SendPayload(ctx context.Context, recipient string, p render.Payload) (dispatch.Receipt, error) {
	to, err := kit.ParseTarget(recipient)
	if err != nil {
		return dispatch.Receipt{}, dispatch.Permanent(err)
	}
	text := p.Text()
	textOpt := &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true}
	if strings.TrimSpace(p.Media) == "" {
		ref, err := a.SendText(ctx, to, text, textOpt)
		return dispatch.Receipt{MessageID: ref.MessageID}, err
	}

	caption := text
	if len([]rune(caption)) > telegramCaptionLimit {
		caption = ""
	}
	media, animation := mediaFor(p.Media, caption)
	sendOpt := &tele.SendOptions{ParseMode: tele.ModeHTML, ThreadID: to.ThreadID}
	msg, err := call(ctx, func() (*tele.Message, error) {
		return a.bot.Send(&tele.Chat{ID: to.ChatID}, media, sendOpt)
	})
	if err != nil {
		return dispatch.Receipt{}, classify(err)
	}

	rc := dispatch.Receipt{MessageID: msg.ID}
	switch {
	case animation && msg.Animation != nil && msg.Animation.FileID != "":
		rc.MediaRef = mediaRefAnimation + msg.Animation.FileID
	case !animation && msg.Photo != nil && msg.Photo.FileID != "":
		rc.MediaRef = mediaRefPhoto + msg.Photo.FileID
	}
	if caption == "" {
		if _, err := a.SendText(ctx, to, text, textOpt); err != nil {
			return rc, err
		}
	}
	return rc, nil
}

// mediaFor builds the telebot sendable for a media url or a MediaRef returned
// by an earlier send.
func mediaFor(ref, caption string) (tele.Sendable, bool) {
	switch {
	case strings.HasPrefix(ref, mediaRefAnimation):
		f := tele.File{FileID: strings.TrimPrefix(ref, mediaRefAnimation)}
		return &tele.Animation{File: f, Caption: caption}, true
	case strings.HasPrefix(ref, mediaRefPhoto):
		f := tele.File{FileID: strings.TrimPrefix(ref, mediaRefPhoto)}
		return &tele.Photo{File: f, Caption: caption}, false
	}
	f := tele.FromURL(ref)
	switch strings.ToLower(path.Ext(strings.SplitN(ref, "?", 2)[0])) {
	case ".gif", ".mp4":
		return &tele.Animation{File: f, Caption: caption}, true
	}
	return &tele.Photo{File: f, Caption: caption}, false
}

// classify maps Bot API failures onto the dispatcher's retry policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return dispatch.RetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	if isGone(err) {
		return dispatch.Permanent(fmt.Errorf("%w: %w", kit.ErrRecipientGone, err))
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == 400 {
		return dispatch.Permanent(err)
	}
	return err
}

func isGone(err error) bool {
	for _, g := range goneErrors {
		if errors.Is(err, g) {
			return true
		}
	}
	var apiErr *tele.Error
	return errors.As(err, &apiErr) && apiErr.Code == 403
}

// call runs a blocking telebot request and gives up waiting once ctx ends.
// The request itself is bounded by the http client timeout.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}
