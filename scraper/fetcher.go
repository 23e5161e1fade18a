package scraper

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-marine/config"
)

// Crawl phases recorded on the request counter.
const (
	phaseDiscovery   = "discovery"
	phaseEnumeration = "enumeration"
	phaseProduct     = "product"
)

// Fetcher issues single-attempt HTTP GETs with a fixed header set, a
// request timeout and an enforced minimum delay between requests to
// the host. It never retries: retry policy belongs to the caller's
// state machine, keeping failure semantics composable.
//
// A Fetcher is not safe for concurrent use; each worker owns its own
// so per-worker pacing stays independent, the way the site tolerates
// a handful of polite parallel clients.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics

	phase      string
	lastBody   []byte
	lastStatus int
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.RequestTimeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      cfg.RateLimit,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{collector: collector, metrics: metrics}

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Ctx.Put("start", time.Now())
		f.metrics.IncRequest(f.phase)
	})
	collector.OnResponse(func(r *colly.Response) {
		f.lastBody = r.Body
		f.lastStatus = r.StatusCode
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			f.lastStatus = r.StatusCode
		}
	})

	return f, nil
}

// WithTransport swaps the underlying transport. Used by tests to
// inject mock round trippers.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch performs one GET and returns the response body, blocking for
// the configured inter-request delay when called in quick succession.
// phase tags the request counter with the crawl stage issuing the GET.
// Failures come back as the typed taxonomy from errors.go.
func (f *Fetcher) Fetch(rawURL, phase string) ([]byte, error) {
	f.phase = phase
	f.lastBody = nil
	f.lastStatus = 0

	if err := f.collector.Visit(rawURL); err != nil {
		classified := classifyError(err, f.lastStatus)
		f.metrics.IncError(errorTypeLabel(classified))
		return nil, classified
	}
	return f.lastBody, nil
}
