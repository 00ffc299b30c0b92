package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks password policy. It does not mutate input.
func (c Config) Validate(password string) error {
	// Count characters (runes), not bytes, to be user-friendly.
	n := utf8.RuneCountInString(password)

	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}

	if !c.hasRequiredClasses(password) {
		return ErrMissingClasses
	}

	if c.Policy.RejectVeryWeak && looksVeryWeak(password) {
		return ErrWeakPassword
	}

	return nil
}

func (c Config) hasRequiredClasses(pw string) bool {
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || r == ' ':
			symbol = true
		}
	}

	p := c.Policy
	if p.RequireUpper && !upper {
		return false
	}
	if p.RequireLower && !lower {
		return false
	}
	if p.RequireDigit && !digit {
		return false
	}
	if p.RequireSymbol && !symbol {
		return false
	}
	return true
}

// looksVeryWeak is minimal and conservative; it is not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}

	// All the same character.
	first, _ := utf8.DecodeRuneInString(s)
	if strings.Trim(s, string(first)) == "" {
		return true
	}

	// Only digits and short-ish (PIN-like).
	onlyDigits := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
	if onlyDigits && utf8.RuneCountInString(s) < 12 {
		return true
	}

	switch strings.ToLower(s) {
	case "password", "password1", "password1!", "password123", "p@ssw0rd", "p@ssword1",
		"123456", "123456789", "qwerty", "qwerty123", "qwerty1!", "11111111", "letmein1!":
		return true
	}

	return false
}
