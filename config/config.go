package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-marine/models"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL     string
	DatabaseURL string
	UserAgent   string

	RequestTimeout time.Duration
	RateLimit      time.Duration // minimum delay between requests to the host
	CategoryDelay  time.Duration // pause between categories inside a worker
	MaxRetries     int
	BackoffFactor  float64

	WorkerCount         int
	MaxPagesPerCategory int // 0 = no page cap
	MaxCategories       int // 0 = all categories
	ItemLimit           int // 0 = no item limit

	MetricsAddr string

	OutputFile   string // empty disables the export sink
	OutputFormat string // csv, json, or dual
	BatchSize    int
	BufferSize   int
	DedupeSize   int

	Verbose bool

	// Static lookup tables, populated once at startup and treated as
	// immutable afterwards.
	ExcludePatterns []string
	CategoryIcons   map[string]string
	StockLabels     map[string]models.StockStatus
}

// DefaultConfig returns defaults tuned for the chandlery catalog site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://nautichandler.com",
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		RequestTimeout:  30 * time.Second,
		RateLimit:       3 * time.Second,
		CategoryDelay:   100 * time.Millisecond,
		MaxRetries:      3,
		BackoffFactor:   2,
		WorkerCount:     5,
		OutputFormat:    "csv",
		BatchSize:       64,
		BufferSize:      512,
		DedupeSize:      10000,
		ExcludePatterns: defaultExcludePatterns(),
		CategoryIcons:   defaultCategoryIcons(),
		StockLabels:     defaultStockLabels(),
	}
}

// Unbounded reports whether the run covers the full catalog. Only
// unbounded runs are allowed to reconcile stale products: a partial
// run must never mistake limited coverage for absence.
func (c *Config) Unbounded() bool {
	return c.ItemLimit == 0 && c.MaxCategories == 0
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.BackoffFactor <= 1 {
		return fmt.Errorf("backoff factor must be greater than 1")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.MaxPagesPerCategory < 0 {
		return fmt.Errorf("max pages per category cannot be negative")
	}
	if c.MaxCategories < 0 {
		return fmt.Errorf("max categories cannot be negative")
	}
	if c.ItemLimit < 0 {
		return fmt.Errorf("item limit cannot be negative")
	}
	if c.OutputFile != "" {
		if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
			return fmt.Errorf("output format must be csv, json, or dual")
		}
		if c.BatchSize <= 0 {
			return fmt.Errorf("batch size must be positive")
		}
		if c.BufferSize <= 0 {
			return fmt.Errorf("buffer size must be positive")
		}
		if c.DedupeSize <= 0 {
			return fmt.Errorf("dedupe size must be positive")
		}
	}
	return nil
}

// EnvInt reads an integer environment variable. The second return
// value reports whether the variable was set.
func EnvInt(name string) (int, bool, error) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return value, true, nil
}

// EnvString reads a string environment variable.
func EnvString(name string) (string, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

// defaultExcludePatterns lists URL substrings that identify
// non-category pages (search, cart, account, module and promotional
// listing URLs).
func defaultExcludePatterns() []string {
	return []string{
		"?search_query=",
		"?order=",
		"/cart",
		"/login",
		"/my-account",
		"/module/",
		"/contact-us",
		"/prices-drop",
		"/new-products",
		"/best-sales",
		"/stores",
	}
}

func defaultCategoryIcons() map[string]string {
	return map[string]string{
		"boat-engine":      "Ship",
		"boat-engines":     "Ship",
		"electronics":      "Monitor",
		"navigation":       "Compass",
		"safety":           "ShieldCheck",
		"safety-equipment": "ShieldCheck",
		"deck-hardware":    "Anchor",
		"deck":             "Anchor",
		"hardware":         "Wrench",
		"plumbing":         "Droplet",
		"electrical":       "Zap",
		"paint":            "Paintbrush",
		"maintenance":      "Settings",
		"cleaning":         "Sparkles",
		"fishing":          "Fish",
		"water-sports":     "Waves",
		"clothing":         "Shirt",
		"accessories":      "Package",
		"lighting":         "Lightbulb",
		"rigging":          "Cable",
		"sails":            "Wind",
		"trailer":          "Truck",
		"fuel":             "Fuel",
		"ventilation":      "Fan",
		"comfort":          "Sofa",
		"anchoring":        "Anchor",
		"mooring":          "Anchor",
	}
}

// defaultStockLabels maps availability text fragments, as shown on
// product pages, to normalized stock statuses.
func defaultStockLabels() map[string]models.StockStatus {
	return map[string]models.StockStatus{
		"in stock":               models.StockInStock,
		"last items in stock":    models.StockLow,
		"available under demand": models.StockOnDemand,
		"out of stock":           models.StockOnDemand,
	}
}

// Icon returns the icon name for a category slug, falling back to the
// generic package icon.
func (c *Config) Icon(slug string) string {
	if icon, ok := c.CategoryIcons[slug]; ok {
		return icon
	}
	return "Package"
}
