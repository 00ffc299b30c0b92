package app

import (
	"log/slog"
	"regexp"
	"strconv"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

func paint(s, color string, on bool) string {
	if !on {
		return s
	}
	return color + s + ansiReset
}

func colorizeHTTPMethod(m string, on bool) string {
	switch m {
	case "GET":
		return paint(m, ansiGreen, on)
	case "POST":
		return paint(m, ansiBlue, on)
	case "DELETE":
		return paint(m, ansiRed, on)
	default:
		return paint(m, ansiYellow, on)
	}
}

func colorizeStatusCode(code int, on bool) string {
	s := strconv.Itoa(code)
	switch {
	case code >= 500:
		return paint(s, ansiRed, on)
	case code >= 400:
		return paint(s, ansiYellow, on)
	case code >= 300:
		return paint(s, ansiCyan, on)
	default:
		return paint(s, ansiGreen, on)
	}
}

func colorizeStatusClass(class string, on bool) string {
	if class == "" {
		return `""`
	}
	switch class[0] {
	case '5':
		return paint(class, ansiRed, on)
	case '4':
		return paint(class, ansiYellow, on)
	case '3':
		return paint(class, ansiCyan, on)
	default:
		return paint(class, ansiGreen, on)
	}
}

// colorizeDurationMS renders milliseconds with a unit; slow requests turn
// yellow at 250ms and red at 1s.
func colorizeDurationMS(ms int64, on bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paint(s, ansiRed, on)
	case ms >= 250:
		return paint(s, ansiYellow, on)
	default:
		return paint(s, ansiDim, on)
	}
}

func colorizeResult(result string, on bool) string {
	switch result {
	case "success":
		return paint(result, ansiGreen, on)
	case "redirect":
		return paint(result, ansiCyan, on)
	case "client_error":
		return paint(result, ansiYellow, on)
	case "server_error":
		return paint(result, ansiRed, on)
	default:
		return quoteIfNeeded(result)
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > 1<<62 {
			return 0, false
		}
		return int64(u), true // #nosec G115 -- bounded above.
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// shortID keeps the first 8 characters of long opaque ids.
func shortID(id string) string {
	if len(id) <= 12 {
		return quoteIfNeeded(id)
	}
	return id[:8] + "..."
}
