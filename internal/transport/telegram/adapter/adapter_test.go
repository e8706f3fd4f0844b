package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"

	"matchbot/internal/dispatch"
	"matchbot/internal/render"
	kit "matchbot/internal/transport"
	"matchbot/pkg/logx"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	if got := splitTelegramText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}

	lines := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf("line %02d", i))
	}
	long := strings.Join(lines, "\n")
	chunks := splitTelegramText(long, 50, "")
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if n := len([]rune(c)); n > 50 {
			t.Fatalf("chunk of %d runes exceeds limit: %q", n, c)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps boundary newline: %q", c)
		}
	}
	if got := strings.Join(chunks, "\n"); got != long {
		t.Fatalf("rejoined text differs")
	}

	html := splitTelegramText("abcdefgh<b>xy</b>", 10, "HTML")
	if len(html) != 2 || html[0] != "abcdefgh" || html[1] != "<b>xy</b>" {
		t.Fatalf("html split = %q", html)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	plain := errors.New("connection reset")
	if got := classify(plain); got != plain {
		t.Fatalf("transient error changed: %v", got)
	}

	for _, gone := range []error{tele.ErrBlockedByUser, tele.ErrChatNotFound, tele.ErrKickedFromSuperGroup} {
		got := classify(fmt.Errorf("telebot: %w", gone))
		if !dispatch.IsPermanent(got) || !errors.Is(got, kit.ErrRecipientGone) {
			t.Fatalf("%v: want permanent recipient-gone, got %v", gone, got)
		}
	}

	bad := classify(tele.NewError(400, "Bad Request: can't parse entities"))
	if !dispatch.IsPermanent(bad) || errors.Is(bad, kit.ErrRecipientGone) {
		t.Fatalf("bad request: want permanent only, got %v", bad)
	}

	flood := classify(tele.FloodError{RetryAfter: 2})
	var fe tele.FloodError
	if dispatch.IsPermanent(flood) || !errors.As(flood, &fe) || fe.RetryAfter != 2 {
		t.Fatalf("flood error misclassified")
	}
}

func TestMediaFor(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ref       string
		animation bool
		fileID    string
	}{
		{"https://cdn.example.com/goal.jpg", false, ""},
		{"https://cdn.example.com/goal.GIF?v=2", true, ""},
		{mediaRefPhoto + "AgAD", false, "AgAD"},
		{mediaRefAnimation + "CgAD", true, "CgAD"},
	}
	for _, tc := range cases {
		m, anim := mediaFor(tc.ref, "cap")
		if anim != tc.animation {
			t.Fatalf("%s: animation = %v", tc.ref, anim)
		}
		var f tele.File
		switch v := m.(type) {
		case *tele.Photo:
			f = v.File
		case *tele.Animation:
			f = v.File
		default:
			t.Fatalf("%s: unexpected sendable %T", tc.ref, m)
		}
		if tc.fileID != "" && f.FileID != tc.fileID {
			t.Fatalf("%s: file id = %q", tc.ref, f.FileID)
		}
		if tc.fileID == "" && f.FileURL != tc.ref {
			t.Fatalf("%s: file url = %q", tc.ref, f.FileURL)
		}
	}
}

// fakeBotAPI answers Bot API methods with canned JSON and records requests.
type fakeBotAPI struct {
	mu      sync.Mutex
	calls   map[string]int
	params  map[string]map[string]any
	replies map[string]string
}

func newFakeBotAPI(t *testing.T, replies map[string]string) (*fakeBotAPI, *httptest.Server) {
	f := &fakeBotAPI{calls: map[string]int{}, params: map[string]map[string]any{}, replies: replies}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := path.Base(r.URL.Path)
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.calls[method]++
		f.params[method] = body
		reply, ok := f.replies[method]
		f.mu.Unlock()
		if !ok {
			reply = `{"ok":true,"result":true}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeBotAPI) last(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params[method]
}

func newTestAdapter(t *testing.T, srv *httptest.Server, logChat string) *Adapter {
	t.Helper()
	a, err := New(Config{Token: "T0KEN", APIURL: srv.URL, Offline: true, LogChat: logChat}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSendPayload(t *testing.T) {
	t.Parallel()
	api, srv := newFakeBotAPI(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":7,"chat":{"id":42,"type":"group"}}}`,
		"sendPhoto": `{"ok":true,"result":{"message_id":8,"chat":{"id":42,"type":"group"},` +
			`"photo":[{"file_id":"small","width":90,"height":90},{"file_id":"big","width":800,"height":600}]}}`,
	})
	a := newTestAdapter(t, srv, "")
	ctx := context.Background()

	rc, err := a.SendPayload(ctx, "42:5", render.Payload{Title: "Goal", Body: "1 - 0"})
	if err != nil || rc.MessageID != 7 {
		t.Fatalf("text payload: %+v, %v", rc, err)
	}
	sent := api.last("sendMessage")
	if sent["text"] != "<b>Goal</b>\n1 - 0" || sent["parse_mode"] != "HTML" || sent["message_thread_id"] != "5" {
		t.Fatalf("sendMessage params = %v", sent)
	}

	rc, err = a.SendPayload(ctx, "42", render.Payload{Title: "Goal", Media: "https://cdn.example.com/goal.jpg"})
	if err != nil || rc.MessageID != 8 || rc.MediaRef != mediaRefPhoto+"big" {
		t.Fatalf("media payload: %+v, %v", rc, err)
	}

	if _, err := a.SendPayload(ctx, "43", render.Payload{Title: "Goal", Media: rc.MediaRef}); err != nil {
		t.Fatalf("reused media: %v", err)
	}
	if got := api.last("sendPhoto")["photo"]; got != "big" {
		t.Fatalf("reused photo param = %v", got)
	}

	if _, err := a.SendPayload(ctx, "not-a-chat", render.Payload{Title: "x"}); !dispatch.IsPermanent(err) {
		t.Fatalf("invalid recipient: want permanent error, got %v", err)
	}
}

func TestSendPayloadRecipientGone(t *testing.T) {
	t.Parallel()
	_, srv := newFakeBotAPI(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
	})
	a := newTestAdapter(t, srv, "")

	_, err := a.SendPayload(context.Background(), "42", render.Payload{Title: "Goal"})
	if !dispatch.IsPermanent(err) || !errors.Is(err, kit.ErrRecipientGone) {
		t.Fatalf("want permanent recipient-gone error, got %v", err)
	}
}

func TestLookupChat(t *testing.T) {
	t.Parallel()
	_, srv := newFakeBotAPI(t, map[string]string{
		"getChat": `{"ok":true,"result":{"id":-100123,"type":"supergroup","title":"Supporters"}}`,
	})
	a := newTestAdapter(t, srv, "")

	info, err := a.LookupChat(context.Background(), "-100123:9")
	if err != nil {
		t.Fatalf("LookupChat: %v", err)
	}
	if info.Recipient != "-100123:9" || info.Title != "Supporters" || info.Type != "supergroup" {
		t.Fatalf("info = %+v", info)
	}

	_, gone := newFakeBotAPI(t, map[string]string{
		"getChat": `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
	})
	b := newTestAdapter(t, gone, "")
	if _, err := b.LookupChat(context.Background(), "-100123"); !errors.Is(err, kit.ErrRecipientGone) {
		t.Fatalf("want recipient gone, got %v", err)
	}
}

func TestSetPresenceSkipsUnchanged(t *testing.T) {
	t.Parallel()
	api, srv := newFakeBotAPI(t, nil)
	a := newTestAdapter(t, srv, "")
	ctx := context.Background()

	for _, text := range []string{"Live: 1 - 0", "Live: 1 - 0", "Live: 2 - 0"} {
		if err := a.SetPresence(ctx, text); err != nil {
			t.Fatalf("SetPresence(%q): %v", text, err)
		}
	}
	if n := api.count("setMyShortDescription"); n != 2 {
		t.Fatalf("setMyShortDescription calls = %d, want 2", n)
	}
	if got := api.last("setMyShortDescription")["short_description"]; got != "Live: 2 - 0" {
		t.Fatalf("short_description = %v", got)
	}

	cmds := []kit.BotCommand{{Command: "subscribe", Description: "Toggle notifications"}}
	_ = a.UpdateMenuCommands(ctx, cmds)
	_ = a.UpdateMenuCommands(ctx, cmds)
	if n := api.count("setMyCommands"); n != 1 {
		t.Fatalf("setMyCommands calls = %d, want 1", n)
	}
}

func TestPostLog(t *testing.T) {
	t.Parallel()
	api, srv := newFakeBotAPI(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":1,"chat":{"id":-100777,"type":"supergroup"}}}`,
	})

	silent := newTestAdapter(t, srv, "")
	if err := silent.PostLog(context.Background(), "hello"); err != nil || api.count("sendMessage") != 0 {
		t.Fatalf("PostLog without log chat: err=%v calls=%d", err, api.count("sendMessage"))
	}

	a := newTestAdapter(t, srv, "-100777")
	if err := a.PostLog(context.Background(), "hello"); err != nil {
		t.Fatalf("PostLog: %v", err)
	}
	if got := api.last("sendMessage")["chat_id"]; got != "-100777" {
		t.Fatalf("chat_id = %v", got)
	}
}
