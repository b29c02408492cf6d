package support

import (
	"net"
	"strings"
)

// NormalizeIP canonicalizes a client address string. IPv6-mapped IPv4
// (::ffff:a.b.c.d) collapses to the plain dotted quad, an attached port is
// stripped, and anything unparseable yields "".
func NormalizeIP(raw string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return ""
	}

	if host, _, err := net.SplitHostPort(candidate); err == nil {
		candidate = host
	}
	candidate = strings.Trim(candidate, "[]")

	parsed := net.ParseIP(candidate)
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}
	return parsed.String()
}

// IsLoopbackOrPrivate reports whether the (already normalized) address sits in
// loopback, RFC 1918/4193, or link-local space. Such addresses are never
// classified or blocked.
func IsLoopbackOrPrivate(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() ||
		parsed.IsUnspecified()
}
