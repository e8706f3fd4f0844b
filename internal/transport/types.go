// Package transport holds the chat-platform neutral types shared by the
// adapter, the command router and the tracker.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRecipientGone marks a recipient the platform reports as permanently
// unreachable: deleted chat, bot kicked or blocked.
var ErrRecipientGone = errors.New("recipient gone")

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic; 0 if none
	ChatTitle    string
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

func (m *Message) Target() ChatTarget { return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID} }

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Key is the recipient id stored in subscriptions: "<chat>" or
// "<chat>:<thread>".
func (t ChatTarget) Key() string {
	if t.ThreadID == 0 {
		return strconv.FormatInt(t.ChatID, 10)
	}
	return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
}

// ParseTarget is the inverse of Key.
func ParseTarget(key string) (ChatTarget, error) {
	chat, thread, hasThread := strings.Cut(strings.TrimSpace(key), ":")
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id in %q", key)
	}
	t := ChatTarget{ChatID: id}
	if hasThread {
		if t.ThreadID, err = strconv.Atoi(thread); err != nil || t.ThreadID < 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread id in %q", key)
		}
	}
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// ChatInfo describes a reachable recipient.
type ChatInfo struct {
	Recipient string
	Title     string
	Type      string
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters with a platform command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
