package actions

import (
	"fmt"
	"strings"
)

// Substitute replaces {key} and {nested.key} tokens with values looked up in
// ctx. Unmatched tokens pass through unchanged. The scan is single-pass, so a
// substituted value can never itself be re-substituted.
func Substitute(s string, ctx map[string]any) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		closing := strings.IndexByte(s[open:], '}')
		if closing < 0 {
			b.WriteString(s)
			return b.String()
		}
		closing += open

		b.WriteString(s[:open])
		token := s[open+1 : closing]

		if value, ok := lookupPath(ctx, token); ok {
			b.WriteString(stringify(value))
		} else {
			b.WriteString(s[open : closing+1])
		}
		s = s[closing+1:]
	}
}

// lookupPath resolves a dotted token against nested maps.
func lookupPath(ctx map[string]any, token string) (any, bool) {
	if token == "" {
		return nil, false
	}
	parts := strings.Split(token, ".")

	var current any = ctx
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode to float64; keep integral values clean.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
