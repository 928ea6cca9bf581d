package auth

import (
	"html"
	"strings"
	"unicode"
)

// SanitizeName prepares a display name for embedding in HTML mail bodies.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = removeControlChars(name, true)
	return html.EscapeString(name)
}

// SanitizeHeader strips every control character, including CR and LF,
// so the value cannot start a new mail header line.
func SanitizeHeader(value string) string {
	return strings.TrimSpace(removeControlChars(value, false))
}

func removeControlChars(s string, keepWhitespace bool) string {
	return strings.Map(func(r rune) rune {
		if keepWhitespace && (r == '\n' || r == '\r' || r == '\t') {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
