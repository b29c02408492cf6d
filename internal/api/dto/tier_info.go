package dto

import "time"

type BlockedInfo struct {
	Address      string    `json:"address"`
	Reason       string    `json:"reason"`
	Country      string    `json:"country,omitempty"`
	ReportCount  int       `json:"report_count"`
	RequestCount int64     `json:"request_count"`
	EnteredAt    time.Time `json:"entered_at"`
}

type BlockedPage struct {
	Entries []BlockedInfo `json:"entries"`
	Total   int64         `json:"total"`
}

type TieredInfo struct {
	Address      string    `json:"address"`
	Confidence   float64   `json:"confidence"`
	ReportCount  int       `json:"report_count"`
	RequestCount int64     `json:"request_count"`
	EnteredAt    time.Time `json:"entered_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type TieredPage struct {
	Entries []TieredInfo `json:"entries"`
	Total   int64        `json:"total"`
}

type MigrationInfo struct {
	Address     string    `json:"address"`
	FromTier    string    `json:"from_tier"`
	ToTier      string    `json:"to_tier"`
	Confidence  float64   `json:"confidence"`
	ReportCount int       `json:"report_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type MigrationPage struct {
	Entries []MigrationInfo `json:"entries"`
	Total   int64           `json:"total"`
}
