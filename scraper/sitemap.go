package scraper

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-marine/config"
	"github.com/aluiziolira/go-scrape-marine/models"
)

var (
	categoryHrefPattern = regexp.MustCompile(`/en/(\d+)-([a-z0-9-]+)$`)
	productHrefPattern  = regexp.MustCompile(`/en/(\d+)-`)
)

const productCardSelector = "article.product-container, article.product-miniature, article[class*='product']"

// Sitemap discovers categories from the site root and enumerates
// product references per category.
type Sitemap struct {
	cfg     *config.Config
	fetcher *Fetcher
}

// NewSitemap builds a sitemap crawler over an existing fetcher.
func NewSitemap(cfg *config.Config, fetcher *Fetcher) *Sitemap {
	return &Sitemap{cfg: cfg, fetcher: fetcher}
}

// DiscoverCategories fetches the site root and extracts category
// descriptors from anchors matching the category URL shape. The result
// is deduplicated by the embedded category id, first occurrence wins,
// and includes parent categories: those simply enumerate to zero
// products downstream, which is not an error.
func (s *Sitemap) DiscoverCategories() ([]models.Category, error) {
	body, err := s.fetcher.Fetch(s.cfg.BaseURL+"/en/", phaseDiscovery)
	if err != nil {
		return nil, fmt.Errorf("fetch site root: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse site root: %w", err)
	}

	var categories []models.Category
	seen := make(map[string]struct{})

	doc.Find("a[href*='/en/']").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		name := strings.TrimSpace(sel.Text())
		if href == "" || name == "" {
			return
		}
		match := categoryHrefPattern.FindStringSubmatch(href)
		if match == nil {
			return
		}
		if s.isExcluded(href) {
			return
		}
		id := match[1]
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		categories = append(categories, models.Category{
			ID:   id,
			Slug: match[2],
			Name: name,
			URL:  s.absoluteURL(href),
		})
	})

	slog.Info("categories discovered", slog.Int("count", len(categories)))
	return categories, nil
}

// EnumerateCategory pages through a category listing collecting
// (external-id, URL) pairs, deduplicated by external id. It pages
// sequentially from page 1 and stops at the first of: a page with no
// product cards, no next-page link, or the page cap. A transient fetch
// failure ends enumeration for this category with the partial result
// kept; the fetcher's inter-request delay paces successive pages.
func (s *Sitemap) EnumerateCategory(categoryURL string, maxPages int) ([]models.ProductRef, error) {
	var refs []models.ProductRef
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		pageURL := categoryURL
		if page > 1 {
			pageURL = fmt.Sprintf("%s?page=%d", categoryURL, page)
		}

		body, err := s.fetcher.Fetch(pageURL, phaseEnumeration)
		if err != nil {
			if IsBlocked(err) {
				return refs, err
			}
			slog.Warn("category page fetch failed",
				slog.String("url", pageURL),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			return refs, nil
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			slog.Warn("category page parse failed", slog.String("url", pageURL), slog.Any("error", err))
			return refs, nil
		}

		cards := doc.Find(productCardSelector)
		if cards.Length() == 0 {
			break
		}

		cards.Each(func(_ int, card *goquery.Selection) {
			link := card.Find("a[href$='.html']").First()
			href := link.AttrOr("href", "")
			if href == "" {
				return
			}
			match := productHrefPattern.FindStringSubmatch(href)
			if match == nil {
				return
			}
			extID := match[1]
			if _, ok := seen[extID]; ok {
				return
			}
			seen[extID] = struct{}{}
			refs = append(refs, models.ProductRef{
				ExternalID: extID,
				URL:        s.absoluteURL(href),
			})
		})

		if doc.Find("a.next, .pagination a[rel='next'], a[rel='next']").Length() == 0 {
			break
		}
		if maxPages > 0 && page >= maxPages {
			break
		}
	}

	return refs, nil
}

func (s *Sitemap) isExcluded(href string) bool {
	for _, pattern := range s.cfg.ExcludePatterns {
		if strings.Contains(href, pattern) {
			return true
		}
	}
	return false
}

func (s *Sitemap) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return s.cfg.BaseURL + href
}
