package database

import (
	"context"
	"errors"

	"perimeter/internal/domain"

	"gorm.io/gorm"
)

// LogMigration appends one audit entry for a tier transition. Entries are
// never updated or deleted.
func LogMigration(ctx context.Context, address string, fromTier *string, toTier string, confidence float64, reportCount int) error {
	if DB == nil {
		return errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	return appendMigration(db, address, fromTier, toTier, confidence, reportCount)
}

func appendMigration(tx *gorm.DB, address string, fromTier *string, toTier string, confidence float64, reportCount int) error {
	entry := domain.TierMigration{
		Address:     address,
		FromTier:    fromTier,
		ToTier:      toTier,
		Confidence:  confidence,
		ReportCount: reportCount,
	}
	return tx.Create(&entry).Error
}

// ListMigrations returns one page of the audit log, newest first.
func ListMigrations(ctx context.Context, page, pageSize int) ([]domain.TierMigration, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.TierMigration
	err := db.Order("created_at DESC, id DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(normalizePageSize(pageSize)).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func CountMigrations(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var count int64
	if err := db.Model(&domain.TierMigration{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MigrationsForAddress returns the full transition history of one address,
// newest first.
func MigrationsForAddress(ctx context.Context, address string) ([]domain.TierMigration, error) {
	if DB == nil {
		return nil, errors.New("database not initialised")
	}

	db := DB
	if ctx != nil {
		db = db.WithContext(ctx)
	}

	var entries []domain.TierMigration
	err := db.Where("address = ?", address).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
