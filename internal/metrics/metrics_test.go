package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scrapePagesTotal == nil || scrapeRunsTotal == nil ||
		cacheReadsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveScrapeRun("success")
	if val := testutil.ToFloat64(scrapeRunsTotal.WithLabelValues("success")); val != 1 {
		t.Errorf("Expected scrapeRunsTotal to be 1, got %f", val)
	}

	ObserveCacheRead("hit")
	ObserveCacheRead("hit")
	if val := testutil.ToFloat64(cacheReadsTotal.WithLabelValues("hit")); val != 2 {
		t.Errorf("Expected cacheReadsTotal to be 2, got %f", val)
	}

	SetScrapeActive(true)
	if val := testutil.ToFloat64(scrapeActive); val != 1 {
		t.Errorf("Expected scrapeActive to be 1, got %f", val)
	}
	SetScrapeActive(false)
	if val := testutil.ToFloat64(scrapeActive); val != 0 {
		t.Errorf("Expected scrapeActive to be 0, got %f", val)
	}
}
