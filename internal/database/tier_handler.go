package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"perimeter/internal/domain"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TierStatus is the result of a trust/watch membership probe.
type TierStatus struct {
	Present    bool
	Confidence float64
	ExpiresAt  time.Time
}

// TrustlistStatus checks trust tier membership. Expired rows report absent
// even before the sweep physically deletes them. Fails open on store errors.
func TrustlistStatus(ctx context.Context, address string) TierStatus {
	return softTierStatus(ctx, address, &domain.TrustedIP{})
}

// WatchlistStatus checks watch tier membership with the same expiry and
// fail-open semantics as TrustlistStatus.
func WatchlistStatus(ctx context.Context, address string) TierStatus {
	return softTierStatus(ctx, address, &domain.WatchedIP{})
}

func softTierStatus(ctx context.Context, address string, model any) TierStatus {
	if !Ready() || DB == nil {
		return TierStatus{}
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var (
		confidence float64
		expiresAt  time.Time
	)

	row := db.Model(model).
		Select("confidence", "expires_at").
		Where("address = ?", address).
		Row()
	if err := row.Scan(&confidence, &expiresAt); err != nil {
		if !errors.Is(err, sql.ErrNoRows) && !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("tier lookup failed, failing open", "address", address, "error", err)
		}
		return TierStatus{}
	}

	if !expiresAt.After(time.Now().UTC()) {
		return TierStatus{}
	}

	return TierStatus{Present: true, Confidence: confidence, ExpiresAt: expiresAt}
}

// AddToTrustlist upserts the address into the trust tier, removing it from the
// watch tier and the blocklist in the same transaction. A migration entry is
// appended when the effective tier changed.
func AddToTrustlist(ctx context.Context, address string, confidence float64, reportCount, ttlDays int) error {
	return addToSoftTier(ctx, address, domain.TierTrustlist, confidence, reportCount, ttlDays)
}

// AddToWatchlist is the watch tier counterpart of AddToTrustlist.
func AddToWatchlist(ctx context.Context, address string, confidence float64, reportCount, ttlDays int) error {
	return addToSoftTier(ctx, address, domain.TierWatchlist, confidence, reportCount, ttlDays)
}

func addToSoftTier(ctx context.Context, address, tier string, confidence float64, reportCount, ttlDays int) error {
	if DB == nil {
		return errors.New("database not initialised")
	}
	if ttlDays <= 0 {
		ttlDays = 1
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, ttlDays)

	return db.Transaction(func(tx *gorm.DB) error {
		fromTier, err := currentTierTx(tx, address, now)
		if err != nil {
			return err
		}

		// Exclusivity: clear every other tier before inserting.
		if tier != domain.TierTrustlist {
			if err := tx.Where("address = ?", address).Delete(&domain.TrustedIP{}).Error; err != nil {
				return err
			}
		}
		if tier != domain.TierWatchlist {
			if err := tx.Where("address = ?", address).Delete(&domain.WatchedIP{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("address = ?", address).Delete(&domain.BlockedIP{}).Error; err != nil {
			return err
		}

		assignments := clause.Assignments(map[string]any{
			"confidence":   confidence,
			"report_count": reportCount,
			"expires_at":   expiresAt,
			"last_seen_at": now,
		})

		switch tier {
		case domain.TierTrustlist:
			entry := domain.TrustedIP{
				Address:     address,
				Confidence:  confidence,
				ReportCount: reportCount,
				EnteredAt:   now,
				ExpiresAt:   expiresAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				DoUpdates: assignments,
			}).Create(&entry).Error; err != nil {
				return err
			}
		case domain.TierWatchlist:
			entry := domain.WatchedIP{
				Address:     address,
				Confidence:  confidence,
				ReportCount: reportCount,
				EnteredAt:   now,
				ExpiresAt:   expiresAt,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "address"}},
				DoUpdates: assignments,
			}).Create(&entry).Error; err != nil {
				return err
			}
		default:
			return errors.New("unknown tier: " + tier)
		}

		if fromTier != nil && *fromTier == tier {
			return nil
		}
		return appendMigration(tx, address, fromTier, tier, confidence, reportCount)
	})
}

// CurrentTier returns the tier currently holding the address, or
// domain.TierUnclassified. Expired trust/watch rows do not count.
func CurrentTier(ctx context.Context, address string) (string, error) {
	if DB == nil {
		return domain.TierUnclassified, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	tier, err := currentTierTx(db, address, time.Now().UTC())
	if err != nil {
		return domain.TierUnclassified, err
	}
	if tier == nil {
		return domain.TierUnclassified, nil
	}
	return *tier, nil
}

func currentTierTx(tx *gorm.DB, address string, now time.Time) (*string, error) {
	var count int64
	if err := tx.Model(&domain.BlockedIP{}).Where("address = ?", address).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		tier := domain.TierBlocklist
		return &tier, nil
	}

	if err := tx.Model(&domain.TrustedIP{}).
		Where("address = ? AND expires_at > ?", address, now).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		tier := domain.TierTrustlist
		return &tier, nil
	}

	if err := tx.Model(&domain.WatchedIP{}).
		Where("address = ? AND expires_at > ?", address, now).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		tier := domain.TierWatchlist
		return &tier, nil
	}

	return nil, nil
}

// removeFromSoftTiers deletes trust/watch rows for the address and returns the
// tier the address effectively occupied (expired rows do not count).
func removeFromSoftTiers(tx *gorm.DB, address string) (*string, error) {
	now := time.Now().UTC()

	fromTier, err := currentTierTx(tx, address, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Where("address = ?", address).Delete(&domain.TrustedIP{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("address = ?", address).Delete(&domain.WatchedIP{}).Error; err != nil {
		return nil, err
	}

	return fromTier, nil
}

// ListTrustedIPs returns one page of trust tier entries, newest first.
// Expired rows are excluded even if the sweep has not removed them yet.
func ListTrustedIPs(ctx context.Context, page, pageSize int) ([]domain.TrustedIP, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.TrustedIP
	err := db.Where("expires_at > ?", time.Now().UTC()).
		Order("entered_at DESC, id DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(normalizePageSize(pageSize)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func CountTrustedIPs(ctx context.Context) (int64, error) {
	return countUnexpired(ctx, &domain.TrustedIP{})
}

// ListWatchedIPs returns one page of watch tier entries, newest first.
func ListWatchedIPs(ctx context.Context, page, pageSize int) ([]domain.WatchedIP, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.WatchedIP
	err := db.Where("expires_at > ?", time.Now().UTC()).
		Order("entered_at DESC, id DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(normalizePageSize(pageSize)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func CountWatchedIPs(ctx context.Context) (int64, error) {
	return countUnexpired(ctx, &domain.WatchedIP{})
}

func countUnexpired(ctx context.Context, model any) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	if err := db.Model(model).Where("expires_at > ?", time.Now().UTC()).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListSoftTierAddresses returns every unexpired trust/watch address, used by
// the recategorization batch.
func ListSoftTierAddresses(ctx context.Context) ([]string, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	now := time.Now().UTC()

	var trusted []string
	if err := db.Model(&domain.TrustedIP{}).
		Where("expires_at > ?", now).
		Order("entered_at ASC").
		Pluck("address", &trusted).Error; err != nil {
		return nil, err
	}

	var watched []string
	if err := db.Model(&domain.WatchedIP{}).
		Where("expires_at > ?", now).
		Order("entered_at ASC").
		Pluck("address", &watched).Error; err != nil {
		return nil, err
	}

	return append(trusted, watched...), nil
}

// SweepExpiredTiers physically deletes expired trust/watch rows. Reads already
// treat them as absent; this reclaims the space.
func SweepExpiredTiers(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	now := time.Now().UTC()
	var removed int64

	res := db.Where("expires_at <= ?", now).Delete(&domain.TrustedIP{})
	if res.Error != nil {
		return removed, res.Error
	}
	removed += res.RowsAffected

	res = db.Where("expires_at <= ?", now).Delete(&domain.WatchedIP{})
	if res.Error != nil {
		return removed, res.Error
	}
	removed += res.RowsAffected

	return removed, nil
}
