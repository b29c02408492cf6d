package database

import (
	"net"
	"sync"

	"perimeter/internal/support"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

const defaultGeoLitePath = "data/GeoLite2-Country.mmdb"

var (
	countryDBMu     sync.Mutex
	countryDB       *geoip2.Reader
	countryDBOpened bool
)

// GeoLiteDBPath returns where the country database lives on disk.
func GeoLiteDBPath() string {
	return support.GetEnv("GEOIP_DB_PATH", defaultGeoLitePath)
}

// ReloadGeoLiteFromDisk swaps the active reader for a freshly opened one and
// closes the replaced reader's mapping. Called after the updater replaces the
// file; a failed open keeps the current reader in place.
func ReloadGeoLiteFromDisk() error {
	reader, err := geoip2.Open(GeoLiteDBPath())
	if err != nil {
		return err
	}

	countryDBMu.Lock()
	defer countryDBMu.Unlock()

	// Lookups run under the same mutex, so nothing holds the old reader here.
	if countryDB != nil {
		if err := countryDB.Close(); err != nil {
			log.Warn("Failed to close replaced GeoLite2 reader", "error", err)
		}
	}
	countryDB = reader
	countryDBOpened = true
	return nil
}

// CountryCode returns the ISO country code for an address when a GeoLite2
// country database is present, and "" otherwise. Purely an enrichment for
// blocklist rows; lookup failures are silent.
func CountryCode(address string) string {
	parsed := net.ParseIP(address)
	if parsed == nil {
		return ""
	}

	countryDBMu.Lock()
	defer countryDBMu.Unlock()

	if !countryDBOpened {
		countryDBOpened = true
		reader, err := geoip2.Open(GeoLiteDBPath())
		if err != nil {
			log.Warn("GeoLite2 database unavailable", "path", GeoLiteDBPath(), "error", err)
		} else {
			countryDB = reader
		}
	}
	if countryDB == nil {
		return ""
	}

	record, err := countryDB.Country(parsed)
	if err != nil || record == nil {
		return ""
	}
	return record.Country.IsoCode
}
