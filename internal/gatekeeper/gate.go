package gatekeeper

import (
	"context"
	"net/http"
	"strings"
	"time"

	"perimeter/internal/config"
	"perimeter/internal/database"
	"perimeter/internal/support"
)

// How long a request may wait on the block check before we let it through.
const blockCheckTimeout = 1 * time.Second

// Gate screens incoming requests against the blocklist. Blocked addresses get
// the same 404 an unknown route would produce, so a scanner cannot tell a
// closed door from a missing one. Every failure mode lets the request pass.
type Gate struct {
	probes *ProbeQueue
}

func NewGate(probes *ProbeQueue) *Gate {
	return &Gate{probes: probes}
}

// Wrap returns next guarded by the blocklist check.
func (g *Gate) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgradeRequest(r) {
			next.ServeHTTP(w, r)
			return
		}

		address := ClientAddress(r)
		if address == "" || support.IsLoopbackOrPrivate(address) || isWhitelisted(address) {
			next.ServeHTTP(w, r)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), blockCheckTimeout)
		blocked := database.IsBlocked(ctx, address)
		cancel()

		if blocked {
			go database.RecordIPAttempt(context.Background(), address)
			http.NotFound(w, r)
			return
		}

		go database.RecordIPAttempt(context.Background(), address)
		next.ServeHTTP(w, r)
	})
}

// Probe handles routes the gateway does not serve. The requested path and the
// caller are counted, the caller is queued for a reputation lookup, and the
// response is a plain 404.
func (g *Gate) Probe() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		go database.RecordRouteAttempt(context.Background(), r.URL.Path)

		address := ClientAddress(r)
		if address != "" && !support.IsLoopbackOrPrivate(address) && !isWhitelisted(address) {
			g.probes.Enqueue(address)
		}

		http.NotFound(w, r)
	})
}

// ClientAddress resolves the caller's IP. The reverse proxy in front of the
// gateway sets X-Forwarded-For with the original client first.
func ClientAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if address := support.NormalizeIP(first); address != "" {
			return address
		}
	}
	return support.NormalizeIP(r.RemoteAddr)
}

func isWhitelisted(address string) bool {
	for _, entry := range config.GetConfig().Gatekeeper.Whitelist {
		if support.NormalizeIP(entry) == address {
			return true
		}
	}
	return false
}

func isUpgradeRequest(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}
