package geolite

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"perimeter/internal/database"
	"perimeter/internal/support"
)

const (
	maxMindDownloadURL = "https://download.maxmind.com/app/geoip_download"
	editionID          = "GeoLite2-Country"
	userAgent          = "perimeter-geolite-updater/1.0"
)

var (
	updateGroup singleflight.Group
	httpClient  = &http.Client{Timeout: 2 * time.Minute}
)

// ErrNoLicenseKey indicates MAXMIND_LICENSE_KEY has not been configured.
var ErrNoLicenseKey = errors.New("geolite: license key is not configured")

// UpdateDatabase downloads the country dataset and swaps the active reader.
// Returns true when an update was performed; without a license key the call
// is skipped with ErrNoLicenseKey.
func UpdateDatabase(ctx context.Context) (bool, error) {
	result, err, _ := updateGroup.Do("update", func() (interface{}, error) {
		licenseKey := strings.TrimSpace(support.GetEnv("MAXMIND_LICENSE_KEY", ""))
		if licenseKey == "" {
			return false, ErrNoLicenseKey
		}

		if err := downloadEdition(ctx, licenseKey); err != nil {
			return false, err
		}

		if err := database.ReloadGeoLiteFromDisk(); err != nil {
			return false, fmt.Errorf("reload geolite: %w", err)
		}

		return true, nil
	})

	if err != nil {
		return false, err
	}

	updated, _ := result.(bool)
	return updated, nil
}

func downloadEdition(ctx context.Context, licenseKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildDownloadURL(licenseKey), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", editionID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("download %s: unexpected status %d: %s", editionID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gzipReader, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: open gzip: %w", editionID, err)
	}
	defer gzipReader.Close()

	destPath := database.GeoLiteDBPath()
	targetBase := filepath.Base(destPath)

	tarReader := tar.NewReader(gzipReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: read tar: %w", editionID, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if filepath.Base(header.Name) != targetBase && !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		if err := writeToFile(destPath, tarReader); err != nil {
			return fmt.Errorf("%s: write file: %w", editionID, err)
		}
		return nil
	}

	return fmt.Errorf("%s: mmdb file not found in archive", editionID)
}

func writeToFile(destPath string, data io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), "geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := io.Copy(tmpFile, data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("copy data: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), destPath); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}

	return nil
}

func buildDownloadURL(licenseKey string) string {
	return fmt.Sprintf("%s?edition_id=%s&license_key=%s&suffix=tar.gz", maxMindDownloadURL, editionID, licenseKey)
}
