package bootstrap

import (
	"context"

	"github.com/charmbracelet/log"

	"perimeter/internal/config"
	"perimeter/internal/database"
	"perimeter/internal/jobs/maintenance"
	"perimeter/internal/reputation"
	"perimeter/internal/support"
)

// Setup loads configuration, warms the store in the background, and starts
// the maintenance routines. The store comes up asynchronously so the gateway
// serves traffic immediately; until it is ready every check fails open.
func Setup(ctx context.Context) *reputation.Checker {
	config.ReadSettings()

	go func() {
		if _, err := database.SetupDB(); err != nil {
			log.Error("Store initialization failed, requests pass unchecked", "error", err)
		} else {
			log.Info("Store ready")
		}
	}()

	if support.RedisConfigured() {
		if client, err := support.GetRedisClient(); err != nil {
			log.Warn("Redis unavailable, running without config synchronization", "error", err)
		} else {
			config.EnableRedisSynchronization(ctx, client)
		}
	}

	apiKey := support.GetEnv("ABUSEIPDB_API_KEY", "")
	if apiKey == "" {
		log.Warn("ABUSEIPDB_API_KEY is not set, remote reputation lookups will fail open")
	}

	checker := reputation.NewChecker(reputation.NewClient(config.GetConfig().Reputation.APIURL, apiKey))

	go checker.StartRecheckRoutine(ctx)
	go maintenance.StartTierSweepRoutine(ctx)
	go maintenance.StartGeoLiteUpdateRoutine(ctx)

	return checker
}
