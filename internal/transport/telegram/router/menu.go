package router

import (
	"strings"
	"unicode"
	"unicode/utf8"

	kit "matchbot/internal/transport"
)

const (
	menuLimit     = 100
	menuDescLimit = 256
	lockPrefix    = "🔒 "
)

// sanitizeTelegramCommand converts a name into a Telegram bot command,
// which must match [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || r == '/' || unicode.IsSpace(r):
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

// buildTelegramMenuCommands lists every command with its description;
// owner-only commands carry a lock.
func buildTelegramMenuCommands(cmds []Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, min(len(cmds), menuLimit))
	for _, c := range cmds {
		desc := strings.Join(strings.Fields(c.Description), " ")
		if desc == "" {
			desc = c.Name
		}
		if c.Access == AccessOwnerOnly {
			desc = lockPrefix + desc
		}
		if len(desc) > menuDescLimit {
			desc = truncateUTF8(desc, menuDescLimit)
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
		if len(out) >= menuLimit {
			break
		}
	}
	return out
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
