package identity

import (
	"strings"
	"unicode/utf8"
)

const (
	maxEmailBytes   = 254
	maxDisplayRunes = 100
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validEmail is a shape check only; deliverability is not our concern.
func validEmail(s string) bool {
	if s == "" || len(s) > maxEmailBytes || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at != strings.LastIndexByte(s, '@') {
		return false
	}
	domain := s[at+1:]
	return domain != "" && !strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func normalizeDisplayName(s string) (string, bool) {
	s = strings.Join(strings.Fields(s), " ")
	n := utf8.RuneCountInString(s)
	return s, n >= 1 && n <= maxDisplayRunes
}
