package render

import "strings"

// Format substitutes {name} placeholders. If the template references a name
// absent from values, the template is returned unchanged.
func Format(tmpl string, values map[string]string) string {
	var b strings.Builder
	b.Grow(len(tmpl))
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		name := rest[open+1 : open+end]
		if !isIdent(name) {
			b.WriteString(rest[:open+1])
			rest = rest[open+1:]
			continue
		}
		v, ok := values[name]
		if !ok {
			return tmpl
		}
		b.WriteString(rest[:open])
		b.WriteString(v)
		rest = rest[open+end+1:]
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
