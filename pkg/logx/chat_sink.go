package logx

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const chatLineLimit = 3500

type chatWriter struct{ svc *Service }

func (w *chatWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *chatWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	lim := s.limiter
	floor := s.minLevel
	hasPoster := s.poster != nil
	s.mu.Unlock()

	if !hasPoster || lim == nil || level < floor || !lim.Allow() {
		return len(p), nil
	}
	line := formatChatLine(p)
	if line == "" {
		return len(p), nil
	}
	// never block the logging path
	select {
	case s.chatQueue <- line:
	default:
	}
	return len(p), nil
}

// formatChatLine renders one zerolog JSON record as an HTML chat message with
// the level and message in bold and the remaining keys in sorted order.
func formatChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(p))), &m); err != nil {
		return truncate(html.EscapeString(strings.TrimSpace(string(p))), chatLineLimit)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	b.WriteString("<b>")
	if lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	b.WriteString(html.EscapeString(msg))
	b.WriteString("</b>")

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		limit := 600
		if k == "stack" {
			limit = 900
		}
		b.WriteString("\n• ")
		b.WriteString(html.EscapeString(k))
		b.WriteString("=<code>")
		b.WriteString(html.EscapeString(truncate(fmt.Sprint(m[k]), limit)))
		b.WriteString("</code>")
	}
	return truncate(b.String(), chatLineLimit)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
