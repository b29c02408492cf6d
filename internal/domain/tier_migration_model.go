package domain

import "time"

// TierMigration is one immutable entry of the append-only audit log. A nil
// FromTier means the address was unclassified before the transition.
type TierMigration struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Address  string  `gorm:"size:45;not null;index"`
	FromTier *string `gorm:"size:16"`
	ToTier   string  `gorm:"size:16;not null"`

	Confidence  float64 `gorm:"not null;default:0"`
	ReportCount int     `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_tier_migrations_created_at,sort:desc"`
}
