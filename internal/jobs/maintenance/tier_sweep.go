package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"perimeter/internal/config"
	"perimeter/internal/database"
	"perimeter/internal/support"
)

const (
	sweepLockKey         = "perimeter:leader:tier_sweep"
	defaultSweepInterval = 6 * time.Hour
)

// StartTierSweepRoutine periodically deletes expired trust and watch entries.
// Lazy expiry already keeps reads correct; the sweep only reclaims rows.
func StartTierSweepRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, sweepLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runSweepLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Tier sweep routine stopped", "error", err)
	}
}

func runSweepLoop(ctx context.Context) {
	current := config.GetSweepInterval()
	if current <= 0 {
		current = defaultSweepInterval
	}

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	updates := config.SweepIntervalUpdates()

	runSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runSweep(ctx)
		case newInterval := <-updates:
			if newInterval <= 0 {
				newInterval = defaultSweepInterval
			}
			if newInterval == current {
				continue
			}
			current = newInterval
			ticker.Reset(current)
		}
	}
}

func runSweep(ctx context.Context) {
	start := time.Now()

	removed, err := database.SweepExpiredTiers(ctx)
	if err != nil {
		log.Error("Tier sweep failed", "error", err)
		return
	}

	if removed > 0 {
		log.Info("Tier sweep completed", "removed", removed, "duration", time.Since(start))
	}
}
