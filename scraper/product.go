package scraper

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-marine/config"
	"github.com/aluiziolira/go-scrape-marine/models"
	"github.com/aluiziolira/go-scrape-marine/parser"
)

// ProductExtractor turns a product page into a structured record. An
// absent price is a normal, representable outcome (nil Price on the
// returned record), never an error.
type ProductExtractor interface {
	Extract(url, externalID string) (*models.Product, error)
}

var discountPattern = regexp.MustCompile(`-?\s*(\d+)%`)

// Extractor is the goquery-based ProductExtractor for the catalog
// site's page layout.
type Extractor struct {
	cfg     *config.Config
	fetcher *Fetcher
}

// NewExtractor builds an extractor over an existing fetcher.
func NewExtractor(cfg *config.Config, fetcher *Fetcher) *Extractor {
	return &Extractor{cfg: cfg, fetcher: fetcher}
}

// Extract fetches and parses one product page.
func (e *Extractor) Extract(url, externalID string) (*models.Product, error) {
	body, err := e.fetcher.Fetch(url, phaseProduct)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse product page: %w", err)
	}

	name := "Unknown Product"
	if el := doc.Find("h1.product-detail-name, h1[itemprop='name'], h1").First(); el.Length() > 0 {
		name = strings.TrimSpace(el.Text())
	}

	price := e.parsePrice(doc)
	originalPrice := parser.ParsePrice(doc.Find(".regular-price").First().Text())
	discount := e.parseDiscount(doc, price, originalPrice)

	description := strings.TrimSpace(doc.Find(".product-description, #product-description, [itemprop='description']").First().Text())
	shortDesc := strings.TrimSpace(doc.Find(".product-description-short, #product-description-short").First().Text())
	if shortDesc == "" && description != "" {
		shortDesc = description
		if len(shortDesc) > 200 {
			shortDesc = shortDesc[:200]
		}
	}

	stock := e.parseStock(doc)
	images := e.parseImages(doc)
	thumbnail := ""
	if len(images) > 0 {
		thumbnail = images[0]
	}

	return &models.Product{
		ExternalID:      externalID,
		SKU:             strings.TrimSpace(doc.Find(".product-reference span").First().Text()),
		Name:            name,
		Slug:            parser.Slugify(name),
		Description:     description,
		ShortDesc:       shortDesc,
		Price:           price,
		OriginalPrice:   originalPrice,
		DiscountPercent: discount,
		Currency:        "EUR",
		StockStatus:     stock,
		Images:          images,
		Thumbnail:       thumbnail,
		Categories:      e.parseBreadcrumbs(doc),
		Available:       stock != models.StockOnDemand,
		SourceURL:       url,
		ScrapedAt:       time.Now().UTC(),
	}, nil
}

func (e *Extractor) parsePrice(doc *goquery.Document) *float64 {
	el := doc.Find(".current-price .current-price-value, .current-price [itemprop='price']").First()
	if el.Length() == 0 {
		el = doc.Find("[itemprop='price']").First()
	}
	if el.Length() == 0 {
		return nil
	}
	if content, ok := el.Attr("content"); ok && content != "" {
		return parser.ParsePrice(content)
	}
	return parser.ParsePrice(el.Text())
}

func (e *Extractor) parseDiscount(doc *goquery.Document, price, originalPrice *float64) *int {
	el := doc.Find(".discount-percentage, .discount-amount, .product-discount .discount").First()
	if el.Length() > 0 {
		if match := discountPattern.FindStringSubmatch(strings.TrimSpace(el.Text())); match != nil {
			if value, err := strconv.Atoi(match[1]); err == nil && value > 0 {
				return &value
			}
		}
	}
	// No badge: derive from the price pair when the product is on sale.
	if price != nil && originalPrice != nil && *originalPrice > *price {
		value := int(math.Round((1 - *price / *originalPrice) * 100))
		if value > 0 {
			return &value
		}
	}
	return nil
}

func (e *Extractor) parseStock(doc *goquery.Document) models.StockStatus {
	el := doc.Find("#product-availability").First()
	if el.Length() == 0 {
		el = doc.Find(".product-availability").First()
	}
	if el.Length() == 0 {
		return models.StockInStock
	}
	return parser.StockFromLabel(el.Text(), e.cfg.StockLabels)
}

// parseImages walks img and picture source elements, keeping product
// photos only, rewritten to their large variant, order-preserving and
// deduplicated.
func (e *Extractor) parseImages(doc *goquery.Document) []string {
	var images []string
	seen := make(map[string]struct{})

	add := func(src string) {
		if !parser.IsProductImage(src) {
			return
		}
		large := parser.LargeImageURL(parser.NormalizeImageURL(src, e.cfg.BaseURL))
		if _, ok := seen[large]; ok {
			return
		}
		seen[large] = struct{}{}
		images = append(images, large)
	}

	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src := sel.AttrOr("src", "")
		if src == "" {
			src = sel.AttrOr("data-src", "")
		}
		add(src)
	})

	doc.Find("source").Each(func(_ int, sel *goquery.Selection) {
		for _, part := range strings.Split(sel.AttrOr("srcset", ""), ",") {
			fields := strings.Fields(strings.TrimSpace(part))
			if len(fields) > 0 {
				add(fields[0])
			}
		}
	})

	return images
}

func (e *Extractor) parseBreadcrumbs(doc *goquery.Document) []string {
	var categories []string
	doc.Find("nav.breadcrumb ol li a span, .breadcrumb li a span").Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Text())
		if name == "" || strings.EqualFold(name, "home") {
			return
		}
		categories = append(categories, name)
	})
	return categories
}
