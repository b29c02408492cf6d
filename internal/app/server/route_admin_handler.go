package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"perimeter/internal/api/dto"
	"perimeter/internal/auth"
	"perimeter/internal/config"
	"perimeter/internal/database"
	"perimeter/internal/domain"
	"perimeter/internal/reputation"
	"perimeter/internal/support"
)

func loginAdmin(w http.ResponseWriter, r *http.Request) {
	var credentials dto.Credentials
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	passwordHash := support.GetEnv("ADMIN_PASSWORD_HASH", "")
	if passwordHash == "" {
		log.Warn("ADMIN_PASSWORD_HASH is not set, admin login is disabled")
		writeError(w, "Admin login disabled", http.StatusServiceUnavailable)
		return
	}

	username := support.GetEnv("ADMIN_USERNAME", "admin")
	if credentials.Username != username || !support.CheckPasswordHash(credentials.Password, passwordHash) {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(credentials.Username, "admin")
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": "admin"})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"store_ready": database.Ready(),
	})
}

func pageParams(r *http.Request) (page, pageSize int) {
	page = 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			pageSize = parsed
		}
	}
	return page, pageSize
}

func getBlockedPage(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	entries, err := database.ListBlockedIPs(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, "Failed to query blocklist", http.StatusInternalServerError)
		return
	}
	total, err := database.CountBlockedIPs(r.Context())
	if err != nil {
		writeError(w, "Failed to query blocklist", http.StatusInternalServerError)
		return
	}

	result := dto.BlockedPage{Entries: make([]dto.BlockedInfo, 0, len(entries)), Total: total}
	for _, entry := range entries {
		result.Entries = append(result.Entries, dto.BlockedInfo{
			Address:      entry.Address,
			Reason:       entry.Reason,
			Country:      entry.Country,
			ReportCount:  entry.ReportCount,
			RequestCount: entry.RequestCount,
			EnteredAt:    entry.EnteredAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func getTrustedPage(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	entries, err := database.ListTrustedIPs(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, "Failed to query trustlist", http.StatusInternalServerError)
		return
	}
	total, err := database.CountTrustedIPs(r.Context())
	if err != nil {
		writeError(w, "Failed to query trustlist", http.StatusInternalServerError)
		return
	}

	result := dto.TieredPage{Entries: make([]dto.TieredInfo, 0, len(entries)), Total: total}
	for _, entry := range entries {
		result.Entries = append(result.Entries, dto.TieredInfo{
			Address:      entry.Address,
			Confidence:   entry.Confidence,
			ReportCount:  entry.ReportCount,
			RequestCount: entry.RequestCount,
			EnteredAt:    entry.EnteredAt,
			ExpiresAt:    entry.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func getWatchedPage(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	entries, err := database.ListWatchedIPs(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, "Failed to query watchlist", http.StatusInternalServerError)
		return
	}
	total, err := database.CountWatchedIPs(r.Context())
	if err != nil {
		writeError(w, "Failed to query watchlist", http.StatusInternalServerError)
		return
	}

	result := dto.TieredPage{Entries: make([]dto.TieredInfo, 0, len(entries)), Total: total}
	for _, entry := range entries {
		result.Entries = append(result.Entries, dto.TieredInfo{
			Address:      entry.Address,
			Confidence:   entry.Confidence,
			ReportCount:  entry.ReportCount,
			RequestCount: entry.RequestCount,
			EnteredAt:    entry.EnteredAt,
			ExpiresAt:    entry.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func getMigrationPage(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	entries, err := database.ListMigrations(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, "Failed to query migrations", http.StatusInternalServerError)
		return
	}
	total, err := database.CountMigrations(r.Context())
	if err != nil {
		writeError(w, "Failed to query migrations", http.StatusInternalServerError)
		return
	}

	result := dto.MigrationPage{Entries: make([]dto.MigrationInfo, 0, len(entries)), Total: total}
	for _, entry := range entries {
		fromTier := domain.TierUnclassified
		if entry.FromTier != nil {
			fromTier = *entry.FromTier
		}
		result.Entries = append(result.Entries, dto.MigrationInfo{
			Address:     entry.Address,
			FromTier:    fromTier,
			ToTier:      entry.ToTier,
			Confidence:  entry.Confidence,
			ReportCount: entry.ReportCount,
			CreatedAt:   entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func getStatistics(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	ipAttempts, err := database.TopIPAttempts(r.Context(), limit)
	if err != nil {
		writeError(w, "Failed to query statistics", http.StatusInternalServerError)
		return
	}
	routeAttempts, err := database.TopRouteAttempts(r.Context(), limit)
	if err != nil {
		writeError(w, "Failed to query statistics", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"addresses": ipAttempts,
		"routes":    routeAttempts,
	})
}

func getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func saveSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	warnings := config.ValidateThresholds(newConfig)
	config.SetConfig(newConfig)

	writeJSON(w, http.StatusOK, map[string]any{"saved": true, "warnings": warnings})
}

func blockAddress(w http.ResponseWriter, r *http.Request) {
	var request dto.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	address := support.NormalizeIP(request.Address)
	if address == "" {
		writeError(w, "Invalid address", http.StatusBadRequest)
		return
	}

	reason := request.Reason
	if reason == "" {
		reason = "manually blocked"
	}

	if err := database.BlockIP(r.Context(), address, reason, 0, 0); err != nil {
		log.Error("Manual block failed", "address", address, "error", err)
		writeError(w, "Failed to block address", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"address": address, "tier": domain.TierBlocklist})
}

func unblockAddress(w http.ResponseWriter, r *http.Request) {
	var request dto.UnblockRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	address := support.NormalizeIP(request.Address)
	if address == "" {
		writeError(w, "Invalid address", http.StatusBadRequest)
		return
	}

	if err := database.UnblockIP(r.Context(), address); err != nil {
		log.Error("Unblock failed", "address", address, "error", err)
		writeError(w, "Failed to unblock address", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"address": address, "tier": domain.TierUnclassified})
}

func checkAddress(w http.ResponseWriter, r *http.Request) {
	var request dto.CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	result, err := apiChecker.CheckIP(r.Context(), request.Address, reputation.CheckOptions{Force: request.Force})
	if err != nil {
		if errors.Is(err, reputation.ErrUnsupportedAddress) {
			writeError(w, "Address cannot be classified", http.StatusBadRequest)
			return
		}
		log.Error("Reputation check failed", "address", request.Address, "error", err)
		writeError(w, "Reputation lookup failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func recategorizeAll(w http.ResponseWriter, r *http.Request) {
	summary, err := apiChecker.RecategorizeAllIPs(r.Context())
	if err != nil {
		log.Error("Recategorization run failed", "error", err)
		writeError(w, "Recategorization failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
