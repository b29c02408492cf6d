package domain

import "time"

// IPAttempt counts requests per address and per the tier the address sat in
// at the time. Counters are operational visibility only and never feed back
// into access decisions.
type IPAttempt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Address string `gorm:"size:45;not null;uniqueIndex:idx_ip_attempts_address_tier,priority:1"`
	Tier    string `gorm:"size:16;not null;uniqueIndex:idx_ip_attempts_address_tier,priority:2"`

	Count      int64     `gorm:"not null;default:0"`
	LastSeenAt time.Time `gorm:"autoUpdateTime"`
}

// RouteAttempt counts requests per route path.
type RouteAttempt struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Route string `gorm:"size:255;uniqueIndex;not null"`

	Count      int64     `gorm:"not null;default:0"`
	LastSeenAt time.Time `gorm:"autoUpdateTime"`
}
