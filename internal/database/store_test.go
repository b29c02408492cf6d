package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"perimeter/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if _, err := SetupDB(WithExistingDB(db)); err != nil {
		t.Fatalf("setup database: %v", err)
	}

	t.Cleanup(ResetForTests)

	return db
}

func tierMembership(t *testing.T, db *gorm.DB, address string) (blocked, trusted, watched int64) {
	t.Helper()

	if err := db.Model(&domain.BlockedIP{}).Where("address = ?", address).Count(&blocked).Error; err != nil {
		t.Fatalf("count blocked: %v", err)
	}
	if err := db.Model(&domain.TrustedIP{}).Where("address = ?", address).Count(&trusted).Error; err != nil {
		t.Fatalf("count trusted: %v", err)
	}
	if err := db.Model(&domain.WatchedIP{}).Where("address = ?", address).Count(&watched).Error; err != nil {
		t.Fatalf("count watched: %v", err)
	}
	return blocked, trusted, watched
}

func TestTierExclusivity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const address = "198.51.100.7"

	if err := AddToTrustlist(ctx, address, 5, 0, 7); err != nil {
		t.Fatalf("add to trustlist: %v", err)
	}
	if err := AddToWatchlist(ctx, address, 55, 3, 3); err != nil {
		t.Fatalf("add to watchlist: %v", err)
	}
	if err := BlockIP(ctx, address, "escalation", 90, 12); err != nil {
		t.Fatalf("block: %v", err)
	}

	blocked, trusted, watched := tierMembership(t, db, address)
	if blocked != 1 || trusted != 0 || watched != 0 {
		t.Fatalf("membership after trust→watch→block = (%d,%d,%d), want (1,0,0)", blocked, trusted, watched)
	}

	if err := AddToTrustlist(ctx, address, 2, 0, 7); err != nil {
		t.Fatalf("re-add to trustlist: %v", err)
	}

	blocked, trusted, watched = tierMembership(t, db, address)
	if blocked != 0 || trusted != 1 || watched != 0 {
		t.Fatalf("membership after reclassification = (%d,%d,%d), want (0,1,0)", blocked, trusted, watched)
	}
}

func TestBlockIPIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const address = "203.0.113.9"

	if err := BlockIP(ctx, address, "probe scanner", 0, 0); err != nil {
		t.Fatalf("first block: %v", err)
	}
	if err := BlockIP(ctx, address, "probe scanner", 0, 0); err != nil {
		t.Fatalf("second block: %v", err)
	}

	var rows int64
	if err := db.Model(&domain.BlockedIP{}).Where("address = ?", address).Count(&rows).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("blocked rows = %d, want 1", rows)
	}

	migrations, err := MigrationsForAddress(ctx, address)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("migration entries = %d, want 1", len(migrations))
	}
	if migrations[0].FromTier != nil {
		t.Fatalf("fromTier = %q, want nil", *migrations[0].FromTier)
	}
	if migrations[0].ToTier != domain.TierBlocklist {
		t.Fatalf("toTier = %q, want %q", migrations[0].ToTier, domain.TierBlocklist)
	}

	if !IsBlocked(ctx, address) {
		t.Fatal("IsBlocked = false after block")
	}
}

func TestUnblockRemovesFromAllTiers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const address = "203.0.113.5"

	if err := BlockIP(ctx, address, "abusive", 85, 40); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := UnblockIP(ctx, address); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	if IsBlocked(ctx, address) {
		t.Fatal("IsBlocked = true after unblock")
	}

	blocked, trusted, watched := tierMembership(t, db, address)
	if blocked+trusted+watched != 0 {
		t.Fatalf("membership after unblock = (%d,%d,%d), want all zero", blocked, trusted, watched)
	}

	// Unblocking again must be a silent no-op.
	if err := UnblockIP(ctx, address); err != nil {
		t.Fatalf("second unblock: %v", err)
	}

	migrations, err := MigrationsForAddress(ctx, address)
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("migration entries = %d, want 2 (block + unblock)", len(migrations))
	}
	if migrations[0].ToTier != domain.TierUnclassified {
		t.Fatalf("latest migration toTier = %q, want %q", migrations[0].ToTier, domain.TierUnclassified)
	}
}

func TestTrustlistExpiry(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const address = "192.0.2.44"

	if err := AddToTrustlist(ctx, address, 3, 0, 7); err != nil {
		t.Fatalf("add to trustlist: %v", err)
	}

	status := TrustlistStatus(ctx, address)
	if !status.Present {
		t.Fatal("trustlist entry absent right after insert")
	}

	remaining := time.Until(status.ExpiresAt)
	if remaining < 6*24*time.Hour || remaining > 8*24*time.Hour {
		t.Fatalf("expiry %v from now, want about 7 days", remaining)
	}

	// Age the row past its TTL; reads must treat it as absent before any sweep.
	expired := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&domain.TrustedIP{}).Where("address = ?", address).Update("expires_at", expired).Error; err != nil {
		t.Fatalf("age row: %v", err)
	}

	if TrustlistStatus(ctx, address).Present {
		t.Fatal("expired trustlist entry still reports present")
	}

	tier, err := CurrentTier(ctx, address)
	if err != nil {
		t.Fatalf("current tier: %v", err)
	}
	if tier != domain.TierUnclassified {
		t.Fatalf("tier = %q, want %q", tier, domain.TierUnclassified)
	}

	removed, err := SweepExpiredTiers(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("sweep removed %d rows, want 1", removed)
	}
}

func TestListBlockedIPsPagination(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		address := fmt.Sprintf("203.0.113.%d", i+1)
		if err := BlockIP(ctx, address, "seed", 0, 0); err != nil {
			t.Fatalf("block %s: %v", address, err)
		}
		// Spread entry times so ordering is deterministic.
		if err := DB.Model(&domain.BlockedIP{}).
			Where("address = ?", address).
			Update("entered_at", base.Add(time.Duration(i)*time.Minute)).Error; err != nil {
			t.Fatalf("set entered_at: %v", err)
		}
	}

	count, err := CountBlockedIPs(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}

	first, err := ListBlockedIPs(ctx, 1, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	second, err := ListBlockedIPs(ctx, 2, 2)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("page sizes = %d,%d, want 2,2", len(first), len(second))
	}
	if first[0].Address != "203.0.113.5" || first[1].Address != "203.0.113.4" {
		t.Fatalf("page 1 = %s,%s, want newest first", first[0].Address, first[1].Address)
	}
	if second[0].Address != "203.0.113.3" {
		t.Fatalf("page 2 starts at %s, want 203.0.113.3", second[0].Address)
	}

	// Page numbers below 1 resolve to the first page.
	floored, err := ListBlockedIPs(ctx, 0, 2)
	if err != nil {
		t.Fatalf("page 0: %v", err)
	}
	if len(floored) != 2 || floored[0].Address != first[0].Address {
		t.Fatalf("page 0 = %+v, want same rows as page 1", floored)
	}
}

func TestAttemptCounters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	const address = "198.51.100.20"

	RecordIPAttempt(ctx, address)
	RecordIPAttempt(ctx, address)

	var bucket domain.IPAttempt
	if err := db.Where("address = ? AND tier = ?", address, domain.TierUnclassified).First(&bucket).Error; err != nil {
		t.Fatalf("load unclassified bucket: %v", err)
	}
	if bucket.Count != 2 {
		t.Fatalf("unclassified count = %d, want 2", bucket.Count)
	}

	if err := BlockIP(ctx, address, "test", 0, 0); err != nil {
		t.Fatalf("block: %v", err)
	}
	RecordIPAttempt(ctx, address)

	// Fresh struct so the first row's primary key does not leak into the query.
	bucket = domain.IPAttempt{}
	if err := db.Where("address = ? AND tier = ?", address, domain.TierBlocklist).First(&bucket).Error; err != nil {
		t.Fatalf("load blocklist bucket: %v", err)
	}
	if bucket.Count != 1 {
		t.Fatalf("blocklist count = %d, want 1", bucket.Count)
	}

	var entry domain.BlockedIP
	if err := db.Where("address = ?", address).First(&entry).Error; err != nil {
		t.Fatalf("load blocked row: %v", err)
	}
	if entry.RequestCount != 1 {
		t.Fatalf("blocked request_count = %d, want 1", entry.RequestCount)
	}

	RecordRouteAttempt(ctx, "/api/devices")
	RecordRouteAttempt(ctx, "/api/devices")

	var route domain.RouteAttempt
	if err := db.Where("route = ?", "/api/devices").First(&route).Error; err != nil {
		t.Fatalf("load route bucket: %v", err)
	}
	if route.Count != 2 {
		t.Fatalf("route count = %d, want 2", route.Count)
	}
}

func TestReadsFailOpenWhenStoreNotReady(t *testing.T) {
	ResetForTests()

	ctx := context.Background()

	if IsBlocked(ctx, "203.0.113.1") {
		t.Fatal("IsBlocked on a not-ready store must return false")
	}
	if TrustlistStatus(ctx, "203.0.113.1").Present {
		t.Fatal("TrustlistStatus on a not-ready store must report absent")
	}
	if WatchlistStatus(ctx, "203.0.113.1").Present {
		t.Fatal("WatchlistStatus on a not-ready store must report absent")
	}

	// Counter writes on a not-ready store are silently dropped.
	RecordIPAttempt(ctx, "203.0.113.1")
	RecordRouteAttempt(ctx, "/")
}
