package database

import (
	"context"
	"errors"
	"time"

	"perimeter/internal/domain"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// IsBlocked reports whether an address currently sits on the blocklist. It has
// no side effects and fails open: a not-ready store or a read error yields
// false so the gateway never locks itself out on its own failures.
func IsBlocked(ctx context.Context, address string) bool {
	if !Ready() || DB == nil {
		return false
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	if err := db.Model(&domain.BlockedIP{}).Where("address = ?", address).Count(&count).Error; err != nil {
		log.Warn("blocklist lookup failed, failing open", "address", address, "error", err)
		return false
	}
	return count > 0
}

// BlockIP inserts the address into the blocklist, removing it from the trust
// and watch tiers in the same transaction and appending a migration entry.
// Blocking an already blocked address is a no-op.
func BlockIP(ctx context.Context, address, reason string, confidence float64, reportCount int) error {
	if DB == nil {
		return errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	country := CountryCode(address)

	return db.Transaction(func(tx *gorm.DB) error {
		var existing domain.BlockedIP
		err := tx.Where("address = ?", address).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		fromTier, err := removeFromSoftTiers(tx, address)
		if err != nil {
			return err
		}

		entry := domain.BlockedIP{
			Address:     address,
			Reason:      reason,
			Country:     country,
			ReportCount: reportCount,
			EnteredAt:   time.Now().UTC(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		return appendMigration(tx, address, fromTier, domain.TierBlocklist, confidence, reportCount)
	})
}

// UnblockIP removes the address from the blocklist. Unblocking an address that
// is not blocked is a no-op; a successful removal is logged as a migration to
// the unclassified state.
func UnblockIP(ctx context.Context, address string) error {
	if DB == nil {
		return errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("address = ?", address).Delete(&domain.BlockedIP{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		from := domain.TierBlocklist
		return appendMigration(tx, address, &from, domain.TierUnclassified, 0, 0)
	})
}

// ListBlockedIPs returns one page of blocklist entries, newest first.
func ListBlockedIPs(ctx context.Context, page, pageSize int) ([]domain.BlockedIP, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.BlockedIP
	err := db.Order("entered_at DESC, id DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(normalizePageSize(pageSize)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func CountBlockedIPs(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	if err := db.Model(&domain.BlockedIP{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func normalizePageSize(pageSize int) int {
	if pageSize <= 0 {
		return defaultPageSize
	}
	if pageSize > maxPageSize {
		return maxPageSize
	}
	return pageSize
}

// pageOffset translates a 1-based page number, the convention of the admin
// API, into a row offset. Page values below 1 resolve to the first page.
func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * normalizePageSize(pageSize)
}
