package chat

import (
	"strings"
	"unicode"
)

// MaxChatLength is the longest message a vanilla client will accept.
const MaxChatLength = 256

// Sanitize makes model output safe to publish as a chat line: trimmed,
// one line, no control or formatting characters, no wrapping quotes,
// at most MaxChatLength runes.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '§':
			return -1
		case r == '\n' || r == '\r' || r == '\t':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)

	s = strings.Join(strings.Fields(s), " ")
	s = stripQuotes(s)

	if runes := []rune(s); len(runes) > MaxChatLength {
		s = strings.TrimSpace(string(runes[:MaxChatLength]))
	}
	return s
}

func stripQuotes(s string) string {
	for _, pair := range [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"「", "」"}} {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			return strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
		}
	}
	return s
}
