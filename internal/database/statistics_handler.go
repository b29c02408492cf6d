package database

import (
	"context"
	"time"

	"perimeter/internal/domain"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordIPAttempt increments the per-address counter bucket for whichever tier
// currently holds the address (or the unclassified bucket) and bumps the
// request counter on the tier row itself. It never returns an error: counters
// are visibility only, a missed increment is acceptable.
func RecordIPAttempt(ctx context.Context, address string) {
	if !Ready() || DB == nil {
		return
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	now := time.Now().UTC()

	tier, err := currentTierTx(db, address, now)
	if err != nil {
		log.Warn("attempt counter: tier resolution failed", "address", address, "error", err)
		return
	}

	bucket := domain.TierUnclassified
	if tier != nil {
		bucket = *tier
	}

	entry := domain.IPAttempt{
		Address:    address,
		Tier:       bucket,
		Count:      1,
		LastSeenAt: now,
	}
	err = db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}, {Name: "tier"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":        gorm.Expr("count + 1"),
			"last_seen_at": now,
		}),
	}).Create(&entry).Error
	if err != nil {
		log.Warn("attempt counter: increment failed", "address", address, "error", err)
		return
	}

	bumpTierRequestCount(db, bucket, address, now)
}

func bumpTierRequestCount(db *gorm.DB, tier, address string, now time.Time) {
	updates := map[string]any{
		"request_count": gorm.Expr("request_count + 1"),
		"last_seen_at":  now,
	}

	var err error
	switch tier {
	case domain.TierBlocklist:
		err = db.Model(&domain.BlockedIP{}).Where("address = ?", address).Updates(updates).Error
	case domain.TierTrustlist:
		err = db.Model(&domain.TrustedIP{}).Where("address = ?", address).Updates(updates).Error
	case domain.TierWatchlist:
		err = db.Model(&domain.WatchedIP{}).Where("address = ?", address).Updates(updates).Error
	default:
		return
	}
	if err != nil {
		log.Warn("attempt counter: tier row bump failed", "address", address, "tier", tier, "error", err)
	}
}

// RecordRouteAttempt increments the per-route counter. Same semantics as
// RecordIPAttempt: errors are logged and dropped.
func RecordRouteAttempt(ctx context.Context, route string) {
	if !Ready() || DB == nil {
		return
	}
	if route == "" {
		route = "/"
	}
	if len(route) > 255 {
		route = route[:255]
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	entry := domain.RouteAttempt{
		Route:      route,
		Count:      1,
		LastSeenAt: time.Now().UTC(),
	}
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "route"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":        gorm.Expr("count + 1"),
			"last_seen_at": time.Now().UTC(),
		}),
	}).Create(&entry).Error
	if err != nil {
		log.Warn("attempt counter: route increment failed", "route", route, "error", err)
	}
}

// TopIPAttempts returns the busiest address buckets for the admin dashboard.
func TopIPAttempts(ctx context.Context, limit int) ([]domain.IPAttempt, error) {
	if DB == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.IPAttempt
	if err := db.Order("count DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// TopRouteAttempts returns the busiest routes for the admin dashboard.
func TopRouteAttempts(ctx context.Context, limit int) ([]domain.RouteAttempt, error) {
	if DB == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.RouteAttempt
	if err := db.Order("count DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
