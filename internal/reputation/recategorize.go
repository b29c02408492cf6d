package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"perimeter/internal/config"
	"perimeter/internal/database"
	"perimeter/internal/domain"
	"perimeter/internal/support"

	"github.com/charmbracelet/log"
)

const (
	recheckLockKey     = "perimeter:leader:recategorize"
	recategorizePacing = time.Second
)

// RecategorizeResult captures the outcome for one address of a batch.
type RecategorizeResult struct {
	Address    string  `json:"address"`
	FromTier   string  `json:"from_tier"`
	ToTier     string  `json:"to_tier"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// RecategorizeSummary is the aggregate outcome of one batch run.
type RecategorizeSummary struct {
	Scanned       int                  `json:"scanned"`
	Recategorized int                  `json:"recategorized"`
	Errors        int                  `json:"errors"`
	Results       []RecategorizeResult `json:"results"`
}

// RecategorizeAllIPs re-runs classification for every trust/watch address to
// correct drift. Calls are serial with at least a second between remote
// lookups; one address failing never aborts the batch.
func (c *Checker) RecategorizeAllIPs(ctx context.Context) (RecategorizeSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	addresses, err := database.ListSoftTierAddresses(ctx)
	if err != nil {
		return RecategorizeSummary{}, err
	}

	summary := RecategorizeSummary{Scanned: len(addresses)}

	for i, address := range addresses {
		if i > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(recategorizePacing):
			}
		}

		fromTier, err := database.CurrentTier(ctx, address)
		if err != nil {
			summary.Errors++
			summary.Results = append(summary.Results, RecategorizeResult{Address: address, Error: err.Error()})
			continue
		}
		if fromTier == domain.TierBlocklist || fromTier == domain.TierUnclassified {
			// Expired or escalated since enumeration; nothing to recheck.
			continue
		}

		result, err := c.CheckIP(ctx, address, CheckOptions{Force: true})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, err
			}
			summary.Errors++
			summary.Results = append(summary.Results, RecategorizeResult{Address: address, FromTier: fromTier, Error: err.Error()})
			continue
		}

		toTier := result.Tier
		if result.IsAbusive {
			// Escalate on the forced verdict itself. An unforced re-check
			// would read the stale soft-tier row still in the store.
			reason := fmt.Sprintf("recategorization escalation: abuse confidence %.0f from %d reports", result.Confidence, result.ReportCount)
			if err := database.BlockIP(ctx, address, reason, result.Confidence, result.ReportCount); err != nil {
				summary.Errors++
				summary.Results = append(summary.Results, RecategorizeResult{Address: address, FromTier: fromTier, Confidence: result.Confidence, Error: err.Error()})
				continue
			}
			toTier = domain.TierBlocklist
		}

		entry := RecategorizeResult{
			Address:    address,
			FromTier:   fromTier,
			ToTier:     toTier,
			Confidence: result.Confidence,
		}
		summary.Results = append(summary.Results, entry)

		if toTier != fromTier {
			summary.Recategorized++
			log.Info("Address recategorized", "address", address, "from", fromTier, "to", toTier, "confidence", result.Confidence)
		}
	}

	return summary, nil
}

// StartRecheckRoutine runs the periodic recategorization loop. The interval
// follows configuration updates, and the loop only executes while holding the
// leadership lock so several workers sharing one store do not double-scan.
func (c *Checker) StartRecheckRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, recheckLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		c.runRecheckLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Recategorization routine stopped", "error", err)
	}
}

func (c *Checker) runRecheckLoop(ctx context.Context) {
	updates := config.RecheckIntervalUpdates()
	current := config.GetRecheckInterval()

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runScheduledRecheck(ctx)
		case newInterval := <-updates:
			if newInterval <= 0 || newInterval == current {
				continue
			}
			current = newInterval
			ticker.Reset(current)
		}
	}
}

func (c *Checker) runScheduledRecheck(ctx context.Context) {
	summary, err := c.RecategorizeAllIPs(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Recategorization canceled")
			return
		}
		log.Error("Recategorization failed", "error", err)
		return
	}

	log.Info("Recategorization completed",
		"scanned", summary.Scanned,
		"recategorized", summary.Recategorized,
		"errors", summary.Errors,
	)
}
