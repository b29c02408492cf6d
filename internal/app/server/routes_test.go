package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"perimeter/internal/api/dto"
	"perimeter/internal/config"
	"perimeter/internal/database"
	"perimeter/internal/domain"
	"perimeter/internal/gatekeeper"
	"perimeter/internal/reputation"
	"perimeter/internal/support"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupServerTest(t *testing.T, remote http.HandlerFunc) http.Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if _, err := database.SetupDB(database.WithExistingDB(db)); err != nil {
		t.Fatalf("setup database: %v", err)
	}
	t.Cleanup(database.ResetForTests)

	config.SetConfigForTests(config.DefaultConfigForTests())
	t.Cleanup(func() { config.SetConfigForTests(config.DefaultConfigForTests()) })

	t.Setenv("JWT_SECRET", "test-secret")
	hash, err := support.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	t.Setenv("ADMIN_PASSWORD_HASH", hash)

	remoteURL := "http://127.0.0.1:1"
	if remote != nil {
		server := httptest.NewServer(remote)
		t.Cleanup(server.Close)
		remoteURL = server.URL
	}

	checker := reputation.NewChecker(reputation.NewClient(remoteURL, "test-key"))
	t.Cleanup(checker.Close)

	queue := gatekeeper.NewProbeQueue(checker, 16)
	t.Cleanup(queue.Close)

	return buildRouter(gatekeeper.NewGate(queue), checker)
}

func adminToken(t *testing.T, router http.Handler) string {
	t.Helper()

	body, _ := json.Marshal(dto.Credentials{Username: "admin", Password: "hunter22"})
	req := httptest.NewRequest(http.MethodPost, "/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if payload["token"] == "" {
		t.Fatal("login response carries no token")
	}
	return payload["token"]
}

func doJSON(router http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	router := setupServerTest(t, nil)

	body, _ := json.Marshal(dto.Credentials{Username: "admin", Password: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/admin/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router := setupServerTest(t, nil)

	rec := doJSON(router, http.MethodGet, "/admin/blocked", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestBlockUnblockFlow(t *testing.T) {
	router := setupServerTest(t, nil)
	token := adminToken(t, router)

	const address = "203.0.113.120"

	rec := doJSON(router, http.MethodPost, "/admin/block", token, dto.BlockRequest{Address: address, Reason: "repeated probing"})
	if rec.Code != http.StatusOK {
		t.Fatalf("block status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(router, http.MethodGet, "/admin/blocked", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var blocked dto.BlockedPage
	if err := json.Unmarshal(rec.Body.Bytes(), &blocked); err != nil {
		t.Fatalf("decode blocked page: %v", err)
	}
	if blocked.Total != 1 || len(blocked.Entries) != 1 || blocked.Entries[0].Address != address {
		t.Fatalf("blocked page = %+v, want one entry for %s", blocked, address)
	}
	if blocked.Entries[0].Reason != "repeated probing" {
		t.Fatalf("reason = %q", blocked.Entries[0].Reason)
	}

	rec = doJSON(router, http.MethodPost, "/admin/unblock", token, dto.UnblockRequest{Address: address})
	if rec.Code != http.StatusOK {
		t.Fatalf("unblock status = %d", rec.Code)
	}

	rec = doJSON(router, http.MethodGet, "/admin/migrations", token, nil)
	var migrations dto.MigrationPage
	if err := json.Unmarshal(rec.Body.Bytes(), &migrations); err != nil {
		t.Fatalf("decode migrations: %v", err)
	}
	if migrations.Total != 2 {
		t.Fatalf("migration total = %d, want 2", migrations.Total)
	}
	if migrations.Entries[0].ToTier != domain.TierUnclassified || migrations.Entries[0].FromTier != domain.TierBlocklist {
		t.Fatalf("latest migration = %+v, want blocklist to unclassified", migrations.Entries[0])
	}
}

func TestBlockRejectsInvalidAddress(t *testing.T) {
	router := setupServerTest(t, nil)
	token := adminToken(t, router)

	rec := doJSON(router, http.MethodPost, "/admin/block", token, dto.BlockRequest{Address: "not-an-ip"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCheckEndpointClassifies(t *testing.T) {
	router := setupServerTest(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"abuseConfidenceScore": 12.0,
				"totalReports":         1,
				"isWhitelisted":        false,
			},
		})
	})
	token := adminToken(t, router)

	rec := doJSON(router, http.MethodPost, "/admin/check", token, dto.CheckRequest{Address: "203.0.113.130"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result reputation.CheckResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode check result: %v", err)
	}
	if result.Tier != domain.TierTrustlist || result.Confidence != 12 {
		t.Fatalf("result = %+v, want trustlist at confidence 12", result)
	}
}

func TestCheckEndpointRejectsPrivateAddress(t *testing.T) {
	router := setupServerTest(t, nil)
	token := adminToken(t, router)

	rec := doJSON(router, http.MethodPost, "/admin/check", token, dto.CheckRequest{Address: "10.0.0.8"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHealthzIsOpenAndReportsStore(t *testing.T) {
	router := setupServerTest(t, nil)

	rec := doJSON(router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if payload["store_ready"] != true {
		t.Fatalf("store_ready = %v, want true", payload["store_ready"])
	}
}

func TestUnknownRouteReturnsGenericNotFound(t *testing.T) {
	router := setupServerTest(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/cgi-bin/luci", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	plain := httptest.NewRecorder()
	http.NotFound(plain, httptest.NewRequest(http.MethodGet, "/cgi-bin/luci", nil))

	if rec.Code != plain.Code || rec.Body.String() != plain.Body.String() {
		t.Fatalf("response (%d, %q) differs from a plain 404 (%d, %q)",
			rec.Code, rec.Body.String(), plain.Code, plain.Body.String())
	}
}

func TestSaveSettingsReportsThresholdWarnings(t *testing.T) {
	router := setupServerTest(t, nil)
	token := adminToken(t, router)

	cfg := config.DefaultConfigForTests()
	cfg.Reputation.TrustlistMax = 80
	cfg.Reputation.WatchlistMax = 40

	rec := doJSON(router, http.MethodPost, "/admin/settings", token, cfg)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Saved    bool     `json:"saved"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Saved || len(payload.Warnings) == 0 {
		t.Fatalf("payload = %+v, want saved with warnings", payload)
	}
}
