package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"perimeter/internal/auth"
	"perimeter/internal/gatekeeper"
	"perimeter/internal/reputation"
)

var apiChecker *reputation.Checker

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func buildRouter(gate *gatekeeper.Gate, checker *reputation.Checker) http.Handler {
	apiChecker = checker

	router := http.NewServeMux()
	router.HandleFunc("POST /admin/login", loginAdmin)
	router.HandleFunc("GET /healthz", healthCheck)

	router.Handle("GET /admin/blocked", auth.RequireAdmin(http.HandlerFunc(getBlockedPage)))
	router.Handle("GET /admin/trusted", auth.RequireAdmin(http.HandlerFunc(getTrustedPage)))
	router.Handle("GET /admin/watched", auth.RequireAdmin(http.HandlerFunc(getWatchedPage)))
	router.Handle("GET /admin/migrations", auth.RequireAdmin(http.HandlerFunc(getMigrationPage)))
	router.Handle("GET /admin/statistics", auth.RequireAdmin(http.HandlerFunc(getStatistics)))
	router.Handle("GET /admin/settings", auth.RequireAdmin(http.HandlerFunc(getSettings)))
	router.Handle("POST /admin/settings", auth.RequireAdmin(http.HandlerFunc(saveSettings)))

	router.Handle("POST /admin/block", auth.RequireAdmin(http.HandlerFunc(blockAddress)))
	router.Handle("POST /admin/unblock", auth.RequireAdmin(http.HandlerFunc(unblockAddress)))
	router.Handle("POST /admin/check", auth.RequireAdmin(http.HandlerFunc(checkAddress)))
	router.Handle("POST /admin/recategorize", auth.RequireAdmin(http.HandlerFunc(recategorizeAll)))

	// Everything else is a route the gateway does not serve. Unknown paths
	// feed the probe counters and, for unknown callers, a reputation lookup.
	router.Handle("/", gate.Wrap(gate.Probe()))

	return router
}

func OpenRoutes(port int, gate *gatekeeper.Gate, checker *reputation.Checker) error {
	server := http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: enableCORS(buildRouter(gate, checker)),
	}

	log.Infof("Starting perimeter API on port :%d", port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
