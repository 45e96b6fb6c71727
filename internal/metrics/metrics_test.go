package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if sourceCallsTotal == nil || entitiesWrittenTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil || runsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveEntityWrite("github", "individual")
	if val := testutil.ToFloat64(entitiesWrittenTotal.WithLabelValues("github", "individual")); val != 1 {
		t.Errorf("Expected entitiesWrittenTotal to be 1, got %f", val)
	}
}

func TestObserveHelpers(t *testing.T) {
	ObserveSourceCall("linkedin", "list_members", "ok", 0)
	ObserveRun("linkedin", "succeeded")
	ObserveCacheLookup("repo_info", true)
	ObserveCacheLookup("repo_info", false)
	IncActiveWorkers()
	DecActiveWorkers()

	if val := testutil.ToFloat64(sourceCallsTotal.WithLabelValues("linkedin", "list_members", "ok")); val != 1 {
		t.Errorf("Expected sourceCallsTotal to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(runsTotal.WithLabelValues("linkedin", "succeeded")); val != 1 {
		t.Errorf("Expected runsTotal to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("repo_info", "hit")); val != 1 {
		t.Errorf("Expected cache hits to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(activeWorkers); val != 0 {
		t.Errorf("Expected activeWorkers to be 0, got %f", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
