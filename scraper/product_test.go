package scraper

import (
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-marine/models"
)

func newTestExtractor(t *testing.T) (*Extractor, *httpmock.MockTransport) {
	t.Helper()
	cfg := testConfig()
	fetcher, err := NewFetcher(cfg, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	fetcher.WithTransport(transport)
	return NewExtractor(cfg, fetcher), transport
}

const productPage = `<html><body>
<nav class="breadcrumb"><ol>
	<li><a href="/"><span>Home</span></a></li>
	<li><a href="/en/12-anchoring"><span>Anchoring</span></a></li>
	<li><a href="/en/13-anchors"><span>Anchors</span></a></li>
</ol></nav>
<h1 class="product-detail-name">Galvanized Plow Anchor 10kg</h1>
<div class="product-reference"><span>ANC-1040</span></div>
<div class="current-price"><span class="current-price-value" content="89.95">89,95 &euro;</span></div>
<span class="regular-price">119,95 &euro;</span>
<div id="product-availability">Last items in stock</div>
<div class="product-description-short">Holds fast in sand and mud.</div>
<div class="product-description">A galvanized plow anchor suited for cruising yachts up to 12 m.</div>
<img src="/100-home_default/plow-anchor.jpg" alt="front"/>
<img data-src="/101-home_default/plow-anchor-side.jpg" alt="side"/>
<img src="/100-home_default/plow-anchor.jpg" alt="duplicate"/>
<img src="/themes/logo.svg" alt="logo"/>
<source srcset="/102-home_default/plow-anchor-deck.jpg 800w, /102-thickbox_default/plow-anchor-deck.jpg 400w"/>
</body></html>`

func TestExtractProduct(t *testing.T) {
	extractor, transport := newTestExtractor(t)
	transport.RegisterResponder("GET", "http://example.test/en/1040-plow-anchor.html", htmlResponder(productPage))

	record, err := extractor.Extract("http://example.test/en/1040-plow-anchor.html", "1040")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if record.ExternalID != "1040" {
		t.Fatalf("external id=%q, want 1040", record.ExternalID)
	}
	if record.Name != "Galvanized Plow Anchor 10kg" {
		t.Fatalf("name=%q", record.Name)
	}
	if record.Slug != "galvanized-plow-anchor-10kg" {
		t.Fatalf("slug=%q", record.Slug)
	}
	if record.SKU != "ANC-1040" {
		t.Fatalf("sku=%q", record.SKU)
	}
	if record.Price == nil || *record.Price != 89.95 {
		t.Fatalf("price=%v, want 89.95 (from content attribute)", record.Price)
	}
	if record.OriginalPrice == nil || *record.OriginalPrice != 119.95 {
		t.Fatalf("original price=%v, want 119.95", record.OriginalPrice)
	}
	// No discount badge on the page: derived from the price pair.
	if record.DiscountPercent == nil || *record.DiscountPercent != 25 {
		t.Fatalf("discount=%v, want 25", record.DiscountPercent)
	}
	if record.Currency != "EUR" {
		t.Fatalf("currency=%q", record.Currency)
	}
	if record.StockStatus != models.StockLow {
		t.Fatalf("stock=%q, want LOW_STOCK", record.StockStatus)
	}
	if record.Available != true {
		t.Fatalf("LOW_STOCK product should be available")
	}
	if record.ShortDesc != "Holds fast in sand and mud." {
		t.Fatalf("short desc=%q", record.ShortDesc)
	}

	wantImages := []string{
		"http://example.test/100-large_default/plow-anchor.jpg",
		"http://example.test/101-large_default/plow-anchor-side.jpg",
		"http://example.test/102-large_default/plow-anchor-deck.jpg",
	}
	if len(record.Images) != len(wantImages) {
		t.Fatalf("images=%v, want %v", record.Images, wantImages)
	}
	for i, want := range wantImages {
		if record.Images[i] != want {
			t.Fatalf("images[%d]=%q, want %q", i, record.Images[i], want)
		}
	}
	if record.Thumbnail != wantImages[0] {
		t.Fatalf("thumbnail=%q, want first image", record.Thumbnail)
	}

	if len(record.Categories) != 2 || record.Categories[0] != "Anchoring" || record.Categories[1] != "Anchors" {
		t.Fatalf("categories=%v, want [Anchoring Anchors]", record.Categories)
	}
}

func TestExtractProductWithoutPrice(t *testing.T) {
	page := `<html><body>
		<h1>Custom Rigging Service</h1>
		<div class="product-description">Quoted individually.</div>
	</body></html>`

	extractor, transport := newTestExtractor(t)
	transport.RegisterResponder("GET", "http://example.test/en/2000-custom-rigging.html", htmlResponder(page))

	record, err := extractor.Extract("http://example.test/en/2000-custom-rigging.html", "2000")
	if err != nil {
		t.Fatalf("a missing price is not an error: %v", err)
	}
	if record.Price != nil {
		t.Fatalf("price=%v, want nil", *record.Price)
	}
	if record.Name != "Custom Rigging Service" {
		t.Fatalf("name=%q", record.Name)
	}
}

func TestExtractProductDiscountBadge(t *testing.T) {
	page := `<html><body>
		<h1>Dock Line 12mm</h1>
		<div class="current-price"><span class="current-price-value" content="15.00">15,00</span></div>
		<span class="regular-price">20,00</span>
		<span class="discount-percentage">-30%</span>
	</body></html>`

	extractor, transport := newTestExtractor(t)
	transport.RegisterResponder("GET", "http://example.test/en/3000-dock-line.html", htmlResponder(page))

	record, err := extractor.Extract("http://example.test/en/3000-dock-line.html", "3000")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	// The badge wins over the derived value.
	if record.DiscountPercent == nil || *record.DiscountPercent != 30 {
		t.Fatalf("discount=%v, want 30 from badge", record.DiscountPercent)
	}
}

func TestExtractProductOnDemandUnavailable(t *testing.T) {
	page := `<html><body>
		<h1>Spinnaker Pole</h1>
		<div class="current-price"><span class="current-price-value" content="450.00">450,00</span></div>
		<div class="product-availability">Available under demand</div>
	</body></html>`

	extractor, transport := newTestExtractor(t)
	transport.RegisterResponder("GET", "http://example.test/en/4000-spinnaker-pole.html", htmlResponder(page))

	record, err := extractor.Extract("http://example.test/en/4000-spinnaker-pole.html", "4000")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if record.StockStatus != models.StockOnDemand {
		t.Fatalf("stock=%q, want ON_DEMAND", record.StockStatus)
	}
	if record.Available {
		t.Fatalf("ON_DEMAND product must not be available")
	}
}
