package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"perimeter/internal/geolite"
	"perimeter/internal/support"
)

const (
	envGeoLiteUpdateInterval = "GEOLITE_UPDATE_INTERVAL"

	geoLiteUpdateLockKey  = "perimeter:leader:geolite_update"
	defaultGeoLiteUpdates = 24 * time.Hour
)

func StartGeoLiteUpdateRoutine(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	err := support.RunWithLeader(ctx, geoLiteUpdateLockKey, support.DefaultLeadershipTTL, func(leaderCtx context.Context) {
		runGeoLiteUpdateLoop(leaderCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("GeoLite update routine stopped", "error", err)
	}
}

func runGeoLiteUpdateLoop(ctx context.Context) {
	interval := resolveGeoLiteInterval()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	triggerGeoLiteUpdate(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			triggerGeoLiteUpdate(ctx, "scheduled")
		}
	}
}

func resolveGeoLiteInterval() time.Duration {
	if raw := support.GetEnv(envGeoLiteUpdateInterval, ""); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			return parsed
		}
		log.Warn("Invalid GEOLITE_UPDATE_INTERVAL value, using default", "value", raw)
	}
	return defaultGeoLiteUpdates
}

func triggerGeoLiteUpdate(ctx context.Context, reason string) {
	updated, err := geolite.UpdateDatabase(ctx)
	switch {
	case errors.Is(err, geolite.ErrNoLicenseKey):
		log.Debug("GeoLite update skipped: license key missing", "reason", reason)
	case err != nil:
		log.Error("GeoLite update failed", "reason", reason, "error", err)
	case updated:
		log.Info("GeoLite database updated", "reason", reason)
	}
}
