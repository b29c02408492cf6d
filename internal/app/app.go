package app

import (
	"context"
	"flag"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"perimeter/internal/app/bootstrap"
	"perimeter/internal/app/server"
	"perimeter/internal/config"
	"perimeter/internal/gatekeeper"
	"perimeter/internal/support"
)

const defaultAPIPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	apiPortFlag := flag.Int("api-port", defaultAPIPort, "Port for the API server")
	flag.Parse()

	apiPort := resolvePort("API_PORT", "api-port", *apiPortFlag)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := bootstrap.Setup(ctx)
	defer checker.Close()

	queueSize := config.GetConfig().Gatekeeper.ProbeQueueSize
	probes := gatekeeper.NewProbeQueue(checker, queueSize)
	defer probes.Close()

	defer func() {
		if support.RedisConfigured() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}
	}()

	return server.OpenRoutes(apiPort, gatekeeper.NewGate(probes), checker)
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}
