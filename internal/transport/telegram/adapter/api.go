package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "matchbot/internal/transport"
	"matchbot/pkg/logx"
)

// presenceLimit is the Bot API cap on the short description.
const presenceLimit = 120

// postAPI performs a raw Bot API call for methods telebot does not expose
// with a context.
func (a *Adapter) postAPI(ctx context.Context, method string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := a.cfg.APIURL + "/bot" + strings.TrimSpace(a.cfg.Token) + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram %s failed: %s (code=%d http=%d)", method, out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram %s failed: http=%d", method, resp.StatusCode)
	}
	return nil
}

func hashStrings(parts ...string) uint64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// UpdateMenuCommands sets the global command menu (setMyCommands). It only
// calls the API when the list changed.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	type cmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	payload := struct {
		Commands []cmd `json:"commands"`
	}{Commands: make([]cmd, 0, len(cmds))}

	parts := make([]string, 0, 2*len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		payload.Commands = append(payload.Commands, cmd{Command: c.Command, Description: d})
		parts = append(parts, c.Command, d)
		if len(payload.Commands) >= 100 {
			break
		}
	}
	sum := hashStrings(parts...)

	a.apiMu.Lock()
	defer a.apiMu.Unlock()
	if sum == a.menuHash {
		return nil
	}
	if err := a.postAPI(ctx, "setMyCommands", payload); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)))
	return nil
}

// SetPresence shows text as the bot's short description, the closest thing
// Telegram has to a status line.
func (a *Adapter) SetPresence(ctx context.Context, text string) error {
	if rs := []rune(text); len(rs) > presenceLimit {
		text = string(rs[:presenceLimit])
	}
	sum := hashStrings(text)

	a.apiMu.Lock()
	defer a.apiMu.Unlock()
	if a.presenceKnown && sum == a.presenceHash {
		return nil
	}
	if err := a.postAPI(ctx, "setMyShortDescription", map[string]string{"short_description": text}); err != nil {
		return err
	}
	a.presenceHash, a.presenceKnown = sum, true
	a.log.Debug("presence updated", logx.String("text", text))
	return nil
}

// LookupChat resolves a recipient key to its chat. Chats the bot can no
// longer reach yield an error wrapping transport.ErrRecipientGone.
func (a *Adapter) LookupChat(ctx context.Context, recipient string) (kit.ChatInfo, error) {
	to, err := kit.ParseTarget(recipient)
	if err != nil {
		return kit.ChatInfo{}, err
	}
	chat, err := call(ctx, func() (*tele.Chat, error) { return a.bot.ChatByID(to.ChatID) })
	if err != nil {
		if isGone(err) {
			return kit.ChatInfo{}, fmt.Errorf("%w: %w", kit.ErrRecipientGone, err)
		}
		return kit.ChatInfo{}, err
	}
	info := kit.ChatInfo{Recipient: to.Key(), Title: chat.Title, Type: string(chat.Type)}
	if info.Title == "" {
		info.Title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
	if info.Title == "" && chat.Username != "" {
		info.Title = "@" + chat.Username
	}
	return info, nil
}

// PostLog forwards a log line to the configured log chat. Without one it is
// a no-op.
func (a *Adapter) PostLog(ctx context.Context, text string) error {
	if a.logChat == nil {
		return nil
	}
	_, err := a.SendText(ctx, *a.logChat, text, &kit.SendOptions{ParseMode: tele.ModeHTML, DisablePreview: true})
	return err
}
