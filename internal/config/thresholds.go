package config

import "fmt"

// Thresholds is an immutable snapshot of the tier boundaries.
type Thresholds struct {
	TrustlistMax float64
	WatchlistMax float64
	BlocklistMin float64
}

func GetThresholds() Thresholds {
	cfg := GetConfig()
	return Thresholds{
		TrustlistMax: cfg.Reputation.TrustlistMax,
		WatchlistMax: cfg.Reputation.WatchlistMax,
		BlocklistMin: cfg.Reputation.BlocklistMin,
	}
}

// ValidateThresholds reports misconfigured tier boundaries. Findings are
// warnings, not errors: the classifier resolves any ambiguous score range to
// the Watchlist at runtime, so a bad config degrades instead of failing.
func ValidateThresholds(cfg Config) []string {
	var warnings []string

	t := cfg.Reputation.TrustlistMax
	y := cfg.Reputation.WatchlistMax
	b := cfg.Reputation.BlocklistMin

	for name, v := range map[string]float64{
		"trustlist_max": t,
		"watchlist_max": y,
		"blocklist_min": b,
	} {
		if v < 0 || v > 100 {
			warnings = append(warnings, fmt.Sprintf("%s=%g is outside [0,100]", name, v))
		}
	}

	if t > y {
		warnings = append(warnings, fmt.Sprintf("trustlist_max=%g exceeds watchlist_max=%g; overlapping scores resolve to the watchlist", t, y))
	}
	if y > b {
		warnings = append(warnings, fmt.Sprintf("watchlist_max=%g exceeds blocklist_min=%g; overlapping scores resolve to the watchlist", y, b))
	}

	return warnings
}
