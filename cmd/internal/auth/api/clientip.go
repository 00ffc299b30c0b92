package authapi

import (
	"net"
	"net/http"
	"strings"
)

// clientIP returns the caller's address. Forwarding headers are honored only
// when the server sits behind a trusted proxy. A RemoteAddr that is not an IP
// (unix sockets) is returned as is so throttling still has a subject.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := lastForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip.String()
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	raw := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(raw)
	if err != nil {
		host = raw
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return raw
}

// lastForwardedIP takes the rightmost valid hop, the one our proxy appended.
// Entries to its left are client supplied.
func lastForwardedIP(raw string) net.IP {
	hops := strings.Split(raw, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		if ip := net.ParseIP(strings.TrimSpace(hops[i])); ip != nil {
			return ip
		}
	}
	return nil
}
