package domain

import "time"

// BlockedIP is a permanently rejected address. Rows only disappear through an
// explicit unblock; there is no expiry.
type BlockedIP struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	// Address holds the normalized IP string (e.g. 192.0.2.1, 2001:db8::1).
	Address string `gorm:"size:45;uniqueIndex;not null"`

	// Reason records why the address was blocked (operator note, escalation
	// verdict, or an external heuristic's tag).
	Reason string `gorm:"size:512;not null;default:''"`

	// Country is a best-effort GeoLite2 ISO code, empty when no database is
	// available at block time.
	Country string `gorm:"size:2;not null;default:''"`

	ReportCount  int   `gorm:"not null;default:0"`
	RequestCount int64 `gorm:"not null;default:0"`

	EnteredAt  time.Time `gorm:"autoCreateTime;index:idx_blocked_ips_entered_at,sort:desc"`
	LastSeenAt time.Time `gorm:"autoUpdateTime"`
}
