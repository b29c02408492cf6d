package domain

// Tier names as stored in migration log entries and attempt counters.
const (
	TierBlocklist    = "blocklist"
	TierTrustlist    = "trustlist"
	TierWatchlist    = "watchlist"
	TierUnclassified = "unclassified"
)
