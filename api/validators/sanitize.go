package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters and keeps at most
// maxRunes runes (0 keeps it whole).
func SanitizeString(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxRunes > 0 {
		if runes := []rune(cleaned); len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}

// NormalizeEmail lower-cases a donor email the way rows are keyed.
func NormalizeEmail(input string) string {
	return strings.ToLower(SanitizeString(input, 320))
}
