// Package models defines data structures for the catalog scraper.
package models

import "time"

// StockStatus is the normalized availability of a product.
type StockStatus string

const (
	StockInStock  StockStatus = "IN_STOCK"
	StockLow      StockStatus = "LOW_STOCK"
	StockOnDemand StockStatus = "ON_DEMAND"
)

// Category is a category discovered on the site root. ID is the
// source-assigned identifier embedded in the URL; Slug is the stable
// join key into storage.
type Category struct {
	ID   string
	Slug string
	Name string
	URL  string
}

// ProductRef is a (external-id, URL) pair produced by category
// enumeration, together with the category it was first seen under.
type ProductRef struct {
	ExternalID string
	URL        string
	Category   Category
}

// Product is a fully extracted product record. Price, OriginalPrice
// and DiscountPercent are pointers because the source page may carry
// none of them; a nil Price makes the record unusable.
type Product struct {
	ExternalID      string      `csv:"external_id" json:"external_id"`
	SKU             string      `csv:"sku" json:"sku,omitempty"`
	Name            string      `csv:"name" json:"name"`
	Slug            string      `csv:"slug" json:"slug"`
	Description     string      `csv:"description" json:"description,omitempty"`
	ShortDesc       string      `csv:"short_desc" json:"short_desc,omitempty"`
	Price           *float64    `csv:"price" json:"price"`
	OriginalPrice   *float64    `csv:"original_price" json:"original_price,omitempty"`
	DiscountPercent *int        `csv:"discount_percent" json:"discount_percent,omitempty"`
	Currency        string      `csv:"currency" json:"currency"`
	StockStatus     StockStatus `csv:"stock_status" json:"stock_status"`
	Images          []string    `csv:"-" json:"images"`
	Thumbnail       string      `csv:"thumbnail" json:"thumbnail,omitempty"`
	Categories      []string    `csv:"-" json:"categories,omitempty"`
	Available       bool        `csv:"available" json:"available"`
	SourceURL       string      `csv:"source_url" json:"source_url"`
	ScrapedAt       time.Time   `csv:"scraped_at" json:"scraped_at"`
}

// WorkerStatus is the terminal state of one worker.
type WorkerStatus string

const (
	WorkerOK      WorkerStatus = "ok"
	WorkerBlocked WorkerStatus = "blocked"
)

// WorkerResult is produced once per worker at termination and consumed
// only by the scheduler's aggregator.
type WorkerResult struct {
	Worker  int
	Status  WorkerStatus
	Scraped int
	Errors  int
}

// RunStatus is the terminal state of a whole run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunBlocked     RunStatus = "blocked"
	RunInterrupted RunStatus = "interrupted"
)

// RunSummary aggregates the outcome of a scraper run.
type RunSummary struct {
	RunID      string
	StartTime  time.Time
	EndTime    time.Time
	Categories int
	Scraped    int
	Errors     int
	Stale      int
	Status     RunStatus
}
