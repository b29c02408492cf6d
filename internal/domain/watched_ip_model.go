package domain

import "time"

// WatchedIP is a medium-risk classification with a limited lifetime. Requests
// still pass; the address is rechecked once the row expires.
type WatchedIP struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Address string `gorm:"size:45;uniqueIndex;not null"`

	Confidence  float64 `gorm:"not null;default:0"`
	ReportCount int     `gorm:"not null;default:0"`

	RequestCount int64 `gorm:"not null;default:0"`

	EnteredAt  time.Time `gorm:"autoCreateTime;index:idx_watched_ips_entered_at,sort:desc"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	LastSeenAt time.Time `gorm:"autoUpdateTime"`
}
