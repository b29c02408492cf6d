package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	remoteCallTimeout = 5 * time.Second
	maxResponseBytes  = 1 << 20 // 1 MiB safety cap
)

var (
	// ErrUnauthorized marks a rejected API key. Always resolved fail-open.
	ErrUnauthorized = errors.New("reputation: remote service rejected the API key")

	// ErrRateLimited marks a 429 from the remote service.
	ErrRateLimited = errors.New("reputation: remote service rate limit exceeded")
)

// RemoteError covers non-2xx responses other than auth and rate-limit.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("reputation: remote service returned status %d: %s", e.StatusCode, e.Body)
}

// ConsistencyError marks a payload whose confidence and report count
// contradict each other. The lookup fails hard instead of defaulting to clean.
type ConsistencyError struct {
	Address string
	Reason  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("reputation: inconsistent response for %s: %s", e.Address, e.Reason)
}

// LookupResult is one validated remote answer.
type LookupResult struct {
	Address             string
	Confidence          float64
	ReportCount         int
	UsageType           string
	GloballyWhitelisted bool
}

// Client talks to an AbuseIPDB-compatible reputation endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: remoteCallTimeout},
	}
}

// Check queries the remote service for one address. Every response is parsed
// through the ordered field fallbacks and validated; contradictory payloads
// yield a ConsistencyError rather than a clean result.
func (c *Client) Check(ctx context.Context, address string, maxAgeDays int) (LookupResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/check", nil)
	if err != nil {
		return LookupResult{}, fmt.Errorf("build request: %w", err)
	}

	q := req.URL.Query()
	q.Add("ipAddress", address)
	q.Add("maxAgeInDays", strconv.Itoa(maxAgeDays))
	q.Add("verbose", "false")
	req.URL.RawQuery = q.Encode()

	req.Header.Add("Key", c.apiKey)
	req.Header.Add("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LookupResult{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return LookupResult{}, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return LookupResult{}, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return LookupResult{}, &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return LookupResult{}, fmt.Errorf("read response: %w", err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return LookupResult{}, fmt.Errorf("parse response: %w", err)
	}

	return resolveLookup(address, parsed)
}
