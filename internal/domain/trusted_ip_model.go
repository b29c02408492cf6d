package domain

import "time"

// TrustedIP is a low-risk classification with a limited lifetime. Expired rows
// are treated as absent by reads even before the sweep deletes them.
type TrustedIP struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Address string `gorm:"size:45;uniqueIndex;not null"`

	// Confidence is the abuse confidence score (0-100) the classifier saw.
	Confidence  float64 `gorm:"not null;default:0"`
	ReportCount int     `gorm:"not null;default:0"`

	RequestCount int64 `gorm:"not null;default:0"`

	EnteredAt  time.Time `gorm:"autoCreateTime;index:idx_trusted_ips_entered_at,sort:desc"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	LastSeenAt time.Time `gorm:"autoUpdateTime"`
}
