package reputation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"perimeter/internal/config"
	"perimeter/internal/database"
	"perimeter/internal/domain"
	"perimeter/internal/support"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

const cacheSweepInterval = time.Hour

// ErrUnsupportedAddress marks loopback, private, or unparseable input. Such
// addresses are never classified.
var ErrUnsupportedAddress = errors.New("reputation: address is not classifiable")

// CheckResult is the outcome of one classification. A remote failure yields
// the zero-confidence fail-open shape with the error returned alongside.
type CheckResult struct {
	Address     string  `json:"address"`
	IsAbusive   bool    `json:"is_abusive"`
	Confidence  float64 `json:"confidence"`
	ReportCount int     `json:"report_count"`

	// Tier the address landed in ("" when nothing was decided).
	Tier string `json:"tier"`

	FromCache bool `json:"from_cache"`
	FromStore bool `json:"from_store"`
}

// CheckOptions control one CheckIP call.
type CheckOptions struct {
	// MaxAgeDays bounds remote report aggregation; 0 uses the configured value.
	MaxAgeDays int

	// Force skips the store and cache and always asks the remote service.
	Force bool
}

type cacheEntry struct {
	result   CheckResult
	cachedAt time.Time
}

// Checker wraps the remote lookup with a result cache, per-address
// single-flight deduplication, and threshold interpretation. It owns its
// mutable state; construct once with NewChecker and Close on shutdown.
type Checker struct {
	client *Client

	flight singleflight.Group

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	sweepCancel context.CancelFunc
	closeOnce   sync.Once
}

func NewChecker(client *Client) *Checker {
	sweepCtx, cancel := context.WithCancel(context.Background())

	c := &Checker{
		client:      client,
		cache:       make(map[string]cacheEntry),
		sweepCancel: cancel,
	}
	go c.sweepLoop(sweepCtx)
	return c
}

// Close stops the cache sweep. In-flight lookups complete on their own.
func (c *Checker) Close() {
	c.closeOnce.Do(c.sweepCancel)
}

// CheckIP classifies one address. Lookup order: persisted tier membership
// (unless forced), the in-memory cache, then the remote service under
// single-flight so concurrent callers for one address share a single call.
// Remote failures resolve fail-open: zero confidence, no tier written.
func (c *Checker) CheckIP(ctx context.Context, address string, opts CheckOptions) (CheckResult, error) {
	normalized := support.NormalizeIP(address)
	if normalized == "" || support.IsLoopbackOrPrivate(normalized) {
		return CheckResult{}, fmt.Errorf("%w: %q", ErrUnsupportedAddress, address)
	}

	cfg := config.GetConfig()
	maxAgeDays := opts.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = cfg.Reputation.MaxAgeDays
	}

	if !opts.Force {
		if status := database.TrustlistStatus(ctx, normalized); status.Present {
			go database.RecordIPAttempt(context.Background(), normalized)
			return CheckResult{
				Address:    normalized,
				Confidence: status.Confidence,
				Tier:       domain.TierTrustlist,
				FromStore:  true,
			}, nil
		}
		if status := database.WatchlistStatus(ctx, normalized); status.Present {
			go database.RecordIPAttempt(context.Background(), normalized)
			return CheckResult{
				Address:    normalized,
				Confidence: status.Confidence,
				Tier:       domain.TierWatchlist,
				FromStore:  true,
			}, nil
		}

		if cached, ok := c.cachedResult(normalized, maxAgeDays); ok {
			return cached, nil
		}
	}

	// The shared call outlives any single caller's deadline; the client
	// enforces its own request timeout. Each caller still honors its own
	// context while waiting.
	ch := c.flight.DoChan(normalized, func() (interface{}, error) {
		return c.lookupAndClassify(context.WithoutCancel(ctx), normalized, maxAgeDays, opts.Force)
	})

	select {
	case <-ctx.Done():
		return CheckResult{Address: normalized}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// Fail open: the caller sees a clean, tierless verdict plus the error.
			return CheckResult{Address: normalized}, res.Err
		}
		checked, _ := res.Val.(CheckResult)
		return checked, nil
	}
}

func (c *Checker) lookupAndClassify(ctx context.Context, address string, maxAgeDays int, force bool) (CheckResult, error) {
	lookup, err := c.client.Check(ctx, address, maxAgeDays)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthorized):
			log.Error("Reputation lookup unauthorized", "address", address)
		case errors.Is(err, ErrRateLimited):
			log.Warn("Reputation lookup rate limited", "address", address)
		default:
			log.Warn("Reputation lookup failed", "address", address, "error", err)
		}
		return CheckResult{}, err
	}

	cfg := config.GetConfig()
	thresholds := config.GetThresholds()
	tier := classifyConfidence(lookup.Confidence, thresholds)

	result := CheckResult{
		Address:     address,
		IsAbusive:   tier == domain.TierBlocklist,
		Confidence:  lookup.Confidence,
		ReportCount: lookup.ReportCount,
		Tier:        tier,
	}

	// Blocklist writes stay with the escalation caller; the classifier only
	// persists the benign tiers.
	switch tier {
	case domain.TierTrustlist:
		if err := database.AddToTrustlist(ctx, address, lookup.Confidence, lookup.ReportCount, cfg.Reputation.TrustTTLDays); err != nil {
			log.Warn("Failed to persist trustlist entry", "address", address, "error", err)
		}
	case domain.TierWatchlist:
		if err := database.AddToWatchlist(ctx, address, lookup.Confidence, lookup.ReportCount, cfg.Reputation.WatchTTLDays); err != nil {
			log.Warn("Failed to persist watchlist entry", "address", address, "error", err)
		}
	}

	c.storeInCache(address, maxAgeDays, result)
	return result, nil
}

// classifyConfidence maps a confidence score onto a tier. Scores in any
// misconfigured or residual range resolve to the watch tier.
func classifyConfidence(confidence float64, t config.Thresholds) string {
	if confidence >= t.BlocklistMin {
		return domain.TierBlocklist
	}
	if confidence < t.TrustlistMax && confidence < t.WatchlistMax {
		return domain.TierTrustlist
	}
	return domain.TierWatchlist
}

func cacheKey(address string, maxAgeDays int) string {
	return fmt.Sprintf("%s/%d", address, maxAgeDays)
}

func (c *Checker) cachedResult(address string, maxAgeDays int) (CheckResult, bool) {
	ttl := cacheTTL()

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	entry, ok := c.cache[cacheKey(address, maxAgeDays)]
	if !ok || time.Since(entry.cachedAt) >= ttl {
		return CheckResult{}, false
	}

	result := entry.result
	result.FromCache = true
	return result, true
}

func (c *Checker) storeInCache(address string, maxAgeDays int, result CheckResult) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[cacheKey(address, maxAgeDays)] = cacheEntry{result: result, cachedAt: time.Now()}
}

func cacheTTL() time.Duration {
	hours := config.GetConfig().Reputation.CacheTTLHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func (c *Checker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepCache()
		}
	}
}

func (c *Checker) sweepCache() {
	ttl := cacheTTL()

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	for key, entry := range c.cache {
		if time.Since(entry.cachedAt) >= ttl {
			delete(c.cache, key)
		}
	}
}

// BlockOutcome is the never-failing result of CheckAndBlockIP.
type BlockOutcome struct {
	Address        string
	Blocked        bool
	AlreadyBlocked bool
	Confidence     float64

	// Reason carries the block reason on success or the failure cause when
	// Blocked is false.
	Reason string
}

// CheckAndBlockIP classifies the address and escalates to the blocklist when
// the verdict is abusive. The confidence threshold is re-verified here,
// independent of the tier label. It never returns an error: every failure
// shape resolves to a non-blocking outcome.
func (c *Checker) CheckAndBlockIP(ctx context.Context, address, reason string) BlockOutcome {
	normalized := support.NormalizeIP(address)
	if normalized == "" || support.IsLoopbackOrPrivate(normalized) {
		return BlockOutcome{Address: address, Reason: "address is not classifiable"}
	}

	if database.IsBlocked(ctx, normalized) {
		return BlockOutcome{Address: normalized, Blocked: true, AlreadyBlocked: true}
	}

	result, err := c.CheckIP(ctx, normalized, CheckOptions{})
	if err != nil {
		return BlockOutcome{Address: normalized, Reason: err.Error()}
	}

	thresholds := config.GetThresholds()
	if !result.IsAbusive || result.Confidence < thresholds.BlocklistMin {
		return BlockOutcome{Address: normalized, Confidence: result.Confidence}
	}

	if reason == "" {
		reason = fmt.Sprintf("abuse confidence %.0f from %d reports", result.Confidence, result.ReportCount)
	}

	if err := database.BlockIP(ctx, normalized, reason, result.Confidence, result.ReportCount); err != nil {
		log.Error("Failed to block abusive address", "address", normalized, "error", err)
		return BlockOutcome{Address: normalized, Confidence: result.Confidence, Reason: err.Error()}
	}

	log.Info("Address blocked", "address", normalized, "confidence", result.Confidence, "reports", result.ReportCount)
	return BlockOutcome{Address: normalized, Blocked: true, Confidence: result.Confidence, Reason: reason}
}
