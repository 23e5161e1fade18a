package scraper

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aluiziolira/go-scrape-marine/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"
	cfg.DatabaseURL = "postgres://scraper@localhost/test"
	cfg.RateLimit = 0
	cfg.CategoryDelay = 0
	return cfg
}

func newTestFetcher(t *testing.T) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()
	fetcher, err := NewFetcher(testConfig(), nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	fetcher.WithTransport(transport)
	return fetcher, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestFetchReturnsBody(t *testing.T) {
	fetcher, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", "http://example.test/en/", htmlResponder("<html><body>ok</body></html>"))

	body, err := fetcher.Fetch("http://example.test/en/", phaseDiscovery)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(string(body), "ok") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestFetchClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, check: IsRateLimited},
		{name: "blocked", status: http.StatusForbidden, check: IsBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher, transport := newTestFetcher(t)
			transport.RegisterResponder("GET", "http://example.test/page", httpmock.NewStringResponder(tt.status, ""))

			_, err := fetcher.Fetch("http://example.test/page", phaseProduct)
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if !tt.check(err) {
				t.Fatalf("status %d misclassified: %v", tt.status, err)
			}
		})
	}
}

func TestFetchServerErrorIsTyped(t *testing.T) {
	fetcher, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", "http://example.test/flaky", httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	_, err := fetcher.Fetch("http://example.test/flaky", phaseProduct)
	if err == nil {
		t.Fatalf("expected error for 500")
	}
	var httpErr ErrHTTPStatus
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected ErrHTTPStatus, got %T: %v", err, err)
	}
	if httpErr.Status != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", httpErr.Status)
	}
	if IsBlocked(err) || IsRateLimited(err) {
		t.Fatalf("500 should be a generic transient failure")
	}
}

func TestFetchCountsRequestsByPhase(t *testing.T) {
	metrics := NewMetrics()
	fetcher, err := NewFetcher(testConfig(), metrics)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	fetcher.WithTransport(transport)
	transport.RegisterResponder("GET", "http://example.test/en/", htmlResponder("<html></html>"))
	transport.RegisterResponder("GET", "http://example.test/en/12-anchoring", htmlResponder("<html></html>"))
	transport.RegisterResponder("GET", "http://example.test/en/100-anchor.html", htmlResponder("<html></html>"))

	if _, err := fetcher.Fetch("http://example.test/en/", phaseDiscovery); err != nil {
		t.Fatalf("discovery fetch: %v", err)
	}
	if _, err := fetcher.Fetch("http://example.test/en/12-anchoring", phaseEnumeration); err != nil {
		t.Fatalf("enumeration fetch: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := fetcher.Fetch("http://example.test/en/100-anchor.html", phaseProduct); err != nil {
			t.Fatalf("product fetch: %v", err)
		}
	}

	for phase, want := range map[string]float64{
		phaseDiscovery:   1,
		phaseEnumeration: 1,
		phaseProduct:     2,
	} {
		got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(phase))
		if got != want {
			t.Fatalf("requests_total{phase=%q}=%v, want %v", phase, got, want)
		}
	}
}

func TestFetchIsSingleAttempt(t *testing.T) {
	fetcher, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", "http://example.test/once", httpmock.NewStringResponder(http.StatusTooManyRequests, ""))

	if _, err := fetcher.Fetch("http://example.test/once", phaseProduct); err == nil {
		t.Fatalf("expected error")
	}

	info := transport.GetCallCountInfo()
	if got := info["GET http://example.test/once"]; got != 1 {
		t.Fatalf("fetch issued %d requests, want exactly 1", got)
	}
}
