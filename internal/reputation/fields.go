package reputation

import (
	"fmt"
	"math"
)

// Accepted field spellings per value, tried in order. The remote schema has
// drifted across service versions, so each value resolves through a fallback
// chain instead of one hardcoded name.
var (
	confidenceFields = []string{"abuseConfidenceScore", "abuseConfidencePercentage", "confidenceScore", "confidence"}
	reportFields     = []string{"totalReports", "reportCount", "numReports"}
	whitelistFields  = []string{"isWhitelisted", "whitelisted"}
	usageTypeFields  = []string{"usageType", "usage_type"}
)

// resolveLookup extracts and validates one lookup payload. Rules:
//   - a whitelisted address is clean regardless of score or report count
//   - a missing/invalid confidence with zero reports defaults to 0
//   - a missing/invalid confidence with reports is a consistency failure
//   - a zero confidence alongside more than 50 reports is a consistency failure
func resolveLookup(address string, payload map[string]any) (LookupResult, error) {
	data := payload
	if nested, ok := payload["data"].(map[string]any); ok {
		data = nested
	}

	reportCount := 0
	if reports, ok := resolveNumber(data, reportFields); ok && reports > 0 {
		reportCount = int(reports)
	}

	whitelisted := resolveBool(data, whitelistFields)
	usageType, _ := resolveString(data, usageTypeFields)

	confidence, confidenceOK := resolveNumber(data, confidenceFields)
	if confidenceOK && (math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 100) {
		confidenceOK = false
	}

	result := LookupResult{
		Address:             address,
		ReportCount:         reportCount,
		UsageType:           usageType,
		GloballyWhitelisted: whitelisted,
	}

	if whitelisted {
		// The service vouches for the address; score and reports are moot.
		result.Confidence = 0
		return result, nil
	}

	if !confidenceOK {
		if reportCount > 0 {
			return LookupResult{}, &ConsistencyError{
				Address: address,
				Reason:  fmt.Sprintf("no usable confidence score but %d reports", reportCount),
			}
		}
		result.Confidence = 0
		return result, nil
	}

	if confidence == 0 && reportCount > 50 {
		return LookupResult{}, &ConsistencyError{
			Address: address,
			Reason:  fmt.Sprintf("confidence 0 with %d reports", reportCount),
		}
	}

	result.Confidence = confidence
	return result, nil
}

func resolveNumber(data map[string]any, names []string) (float64, bool) {
	for _, name := range names {
		raw, ok := data[name]
		if !ok {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}

func resolveBool(data map[string]any, names []string) bool {
	for _, name := range names {
		if v, ok := data[name].(bool); ok {
			return v
		}
	}
	return false
}

func resolveString(data map[string]any, names []string) (string, bool) {
	for _, name := range names {
		if v, ok := data[name].(string); ok {
			return v, true
		}
	}
	return "", false
}
