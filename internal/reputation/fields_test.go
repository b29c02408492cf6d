package reputation

import (
	"errors"
	"testing"
)

func TestResolveLookupFieldFallbacks(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		want    float64
	}{
		{
			name: "primary field name",
			payload: map[string]any{
				"data": map[string]any{"abuseConfidenceScore": 42.0},
			},
			want: 42,
		},
		{
			name: "legacy percentage field",
			payload: map[string]any{
				"data": map[string]any{"abuseConfidencePercentage": 37.0},
			},
			want: 37,
		},
		{
			name: "bare confidence field without data envelope",
			payload: map[string]any{
				"confidence": 12.0,
			},
			want: 12,
		},
		{
			name: "first matching name wins",
			payload: map[string]any{
				"data": map[string]any{
					"abuseConfidenceScore": 80.0,
					"confidence":           5.0,
				},
			},
			want: 80,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := resolveLookup("198.51.100.1", tc.payload)
			if err != nil {
				t.Fatalf("resolveLookup: %v", err)
			}
			if result.Confidence != tc.want {
				t.Fatalf("confidence = %g, want %g", result.Confidence, tc.want)
			}
		})
	}
}

func TestResolveLookupWhitelistForcesClean(t *testing.T) {
	result, err := resolveLookup("198.51.100.2", map[string]any{
		"data": map[string]any{
			"abuseConfidenceScore": 88.0,
			"totalReports":         400.0,
			"isWhitelisted":        true,
		},
	})
	if err != nil {
		t.Fatalf("resolveLookup: %v", err)
	}
	if result.Confidence != 0 || !result.GloballyWhitelisted {
		t.Fatalf("result = %+v, want confidence forced to 0", result)
	}
}

func TestResolveLookupDefaultsCleanWithoutReports(t *testing.T) {
	result, err := resolveLookup("198.51.100.3", map[string]any{
		"data": map[string]any{"totalReports": 0.0},
	})
	if err != nil {
		t.Fatalf("resolveLookup: %v", err)
	}
	if result.Confidence != 0 {
		t.Fatalf("confidence = %g, want 0", result.Confidence)
	}
}

func TestResolveLookupConsistencyFailures(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{
			name: "reports without a usable confidence",
			payload: map[string]any{
				"data": map[string]any{"totalReports": 7.0},
			},
		},
		{
			name: "confidence outside the valid range",
			payload: map[string]any{
				"data": map[string]any{
					"abuseConfidenceScore": 250.0,
					"totalReports":         7.0,
				},
			},
		},
		{
			name: "zero confidence with heavy reporting",
			payload: map[string]any{
				"data": map[string]any{
					"abuseConfidenceScore": 0.0,
					"totalReports":         120.0,
					"isWhitelisted":        false,
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveLookup("198.51.100.4", tc.payload)
			var consistencyErr *ConsistencyError
			if !errors.As(err, &consistencyErr) {
				t.Fatalf("error = %v, want ConsistencyError", err)
			}
		})
	}
}
