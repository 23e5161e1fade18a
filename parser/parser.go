// Package parser provides pure field-level parsing and normalization
// helpers shared by the scraper and the export pipeline.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-marine/models"
)

var (
	nonPriceChars  = regexp.MustCompile(`[^\d.,]`)
	nonSlugChars   = regexp.MustCompile(`[^\w\s-]`)
	slugSeparators = regexp.MustCompile(`[\s_]+`)
	slugDashes     = regexp.MustCompile(`-+`)
	sizeVariant    = regexp.MustCompile(`-\w+_default/`)
	defaultVariant = regexp.MustCompile(`/\d+-\w+_default/`)
)

// ParsePrice extracts a numeric price from display text such as
// "1.234,56 €". It returns nil when no usable number is present.
func ParsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	cleaned := nonPriceChars.ReplaceAllString(strings.TrimSpace(text), "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if parts := strings.Split(cleaned, "."); len(parts) > 2 {
		// Thousands separators: keep only the last dot as decimal.
		cleaned = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}

// Slugify derives a URL/key-safe slug from a display name.
func Slugify(text string) string {
	slug := strings.ToLower(strings.TrimSpace(text))
	slug = nonSlugChars.ReplaceAllString(slug, "")
	slug = slugSeparators.ReplaceAllString(slug, "-")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// StockFromLabel maps availability text to a normalized stock status
// using the configured label table. The longest matching fragment wins
// so "last items in stock" beats its "in stock" substring. Unrecognized
// text defaults to IN_STOCK, matching the site's behavior of hiding the
// availability element for regular stock.
func StockFromLabel(text string, labels map[string]models.StockStatus) models.StockStatus {
	lowered := strings.ToLower(strings.TrimSpace(text))
	status := models.StockInStock
	best := 0
	for fragment, mapped := range labels {
		if len(fragment) > best && strings.Contains(lowered, fragment) {
			best = len(fragment)
			status = mapped
		}
	}
	return status
}

// IsProductImage reports whether an image source URL points at a
// product photo rather than theme assets, flags or module graphics.
func IsProductImage(src string) bool {
	if src == "" {
		return false
	}
	if strings.HasSuffix(src, ".svg") {
		return false
	}
	if strings.Contains(src, "/img/l/") || strings.Contains(src, "/modules/") {
		return false
	}
	return defaultVariant.MatchString(src)
}

// NormalizeImageURL resolves protocol-relative and root-relative image
// URLs against the site base.
func NormalizeImageURL(src, baseURL string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	if strings.HasPrefix(src, "/") {
		return baseURL + src
	}
	return src
}

// LargeImageURL rewrites a sized image variant to the large variant.
func LargeImageURL(src string) string {
	return sizeVariant.ReplaceAllString(src, "-large_default/")
}

// ValidateProduct ensures a record is complete enough to export.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if p.ExternalID == "" {
		return fmt.Errorf("product missing external id")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product missing name for %s", p.ExternalID)
	}
	if p.Price == nil || *p.Price <= 0 {
		return fmt.Errorf("product missing price for %s", p.ExternalID)
	}
	return nil
}
