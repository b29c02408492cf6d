package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

type Config struct {
	Reputation struct {
		// APIURL is the base URL of the remote reputation service
		// (AbuseIPDB-compatible /check endpoint).
		APIURL string `json:"api_url"`

		// MaxAgeDays bounds how far back the remote service aggregates reports.
		MaxAgeDays int `json:"max_age_days"`

		// Tier thresholds over the 0-100 abuse confidence score:
		// [0, trustlist_max) => Trustlist, [trustlist_max, watchlist_max) =>
		// Watchlist, [blocklist_min, 100] => Blocklist. Scores between
		// watchlist_max and blocklist_min fall back to Watchlist.
		TrustlistMax float64 `json:"trustlist_max"`
		WatchlistMax float64 `json:"watchlist_max"`
		BlocklistMin float64 `json:"blocklist_min"`

		CacheTTLHours int `json:"cache_ttl_hours"`
		TrustTTLDays  int `json:"trust_ttl_days"`
		WatchTTLDays  int `json:"watch_ttl_days"`

		RecheckTimer Timer `json:"recheck_timer"`
		SweepTimer   Timer `json:"sweep_timer"`
	} `json:"reputation"`

	Gatekeeper struct {
		// Whitelist holds addresses that bypass reputation entirely.
		Whitelist []string `json:"whitelist"`

		// ProbeQueueSize bounds the background classification queue.
		ProbeQueueSize int `json:"probe_queue_size"`
	} `json:"gatekeeper"`
}

type Timer struct {
	Days    uint32 `json:"days"`
	Hours   uint32 `json:"hours"`
	Minutes uint32 `json:"minutes"`
	Seconds uint32 `json:"seconds"`
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	var cfg Config
	if err := json.Unmarshal(defaultConfig, &cfg); err == nil {
		configValue.Store(cfg)
	} else {
		configValue.Store(Config{})
	}
}

func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			err = os.MkdirAll("data", os.ModePerm)
			if err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}

			err = os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm)
			if err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	var newConfig Config
	err = json.Unmarshal(data, &newConfig)
	if err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file:", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update:", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	for _, warning := range ValidateThresholds(newConfig) {
		log.Warn("Configuration threshold issue", "warning", warning)
	}

	configValue.Store(newConfig)
	SetIntervals()

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration:", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
			log.Error("Error writing new configuration to file:", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			log.Error("Error serializing configuration for broadcast:", err)
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			log.Error("Error broadcasting configuration update:", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

// SetConfigForTests swaps the snapshot without touching disk or Redis.
func SetConfigForTests(cfg Config) {
	configValue.Store(cfg)
	SetIntervals()
}

// DefaultConfigForTests returns the embedded default configuration.
func DefaultConfigForTests() Config {
	var cfg Config
	_ = json.Unmarshal(defaultConfig, &cfg)
	return cfg
}
