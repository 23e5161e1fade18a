package scraper

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/aluiziolira/go-scrape-marine/config"
	"github.com/aluiziolira/go-scrape-marine/models"
)

// Store is the persistence collaborator. Conflicting concurrent writes
// are serialized by the store itself through unique-key upserts, so
// workers never coordinate in-process.
type Store interface {
	UpsertCategory(ctx context.Context, slug, name string, displayOrder int) (string, error)
	SetCategoryIcon(ctx context.Context, slug, icon string) error
	UpdateCategoryImage(ctx context.Context, categoryID, imageURL string) error
	UpsertProduct(ctx context.Context, p *models.Product, categoryID string) (string, error)
	UpdateCategoryCounts(ctx context.Context) error
	StartRun(ctx context.Context) (string, error)
	FinishRun(ctx context.Context, runID string, scraped, errs int, status models.RunStatus) error
	MarkStaleUnseen(ctx context.Context, since time.Time) ([]string, error)
}

// CategoryEnumerator lists product references for one category.
type CategoryEnumerator interface {
	EnumerateCategory(categoryURL string, maxPages int) ([]models.ProductRef, error)
}

// Exporter mirrors persisted products to a secondary sink. Optional.
type Exporter interface {
	Process(p *models.Product) error
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeBlocked
	outcomeStopped
)

// Worker processes one disjoint chunk of the category list: it
// enumerates products per category, then drives each product through
// the fetch/extract/persist state machine with bounded retries.
type Worker struct {
	id        int
	cfg       *config.Config
	sitemap   CategoryEnumerator
	extractor ProductExtractor
	store     Store
	metrics   *Metrics
	export    Exporter
}

// NewWorker assembles a worker over its collaborators. export may be nil.
func NewWorker(id int, cfg *config.Config, sitemap CategoryEnumerator, extractor ProductExtractor, store Store, metrics *Metrics, export Exporter) *Worker {
	return &Worker{
		id:        id,
		cfg:       cfg,
		sitemap:   sitemap,
		extractor: extractor,
		store:     store,
		metrics:   metrics,
		export:    export,
	}
}

// Run crawls the assigned categories and scrapes their products.
// itemLimit caps the number of products attempted (0 = no cap). The
// worker stops cooperatively between products when ctx is cancelled
// and terminates immediately, reporting status blocked, when the
// remote host denies it.
func (w *Worker) Run(ctx context.Context, categories []models.Category, itemLimit int) models.WorkerResult {
	result := models.WorkerResult{Worker: w.id, Status: models.WorkerOK}

	slog.Info("worker starting", slog.Int("worker", w.id), slog.Int("categories", len(categories)))

	refs := w.crawlCategories(ctx, categories, &result)
	if result.Status == models.WorkerBlocked {
		return result
	}
	if itemLimit > 0 && len(refs) > itemLimit {
		refs = refs[:itemLimit]
	}

	slog.Info("worker crawl complete", slog.Int("worker", w.id), slog.Int("products", len(refs)))

	categoryIDs := make(map[string]string)
	for i, ref := range refs {
		if ctx.Err() != nil {
			break
		}

		categoryID, ok := categoryIDs[ref.Category.Slug]
		if !ok {
			id, err := w.ensureCategory(ctx, ref.Category, i)
			if err != nil {
				slog.Error("category upsert failed",
					slog.Int("worker", w.id),
					slog.String("slug", ref.Category.Slug),
					slog.Any("error", err),
				)
				result.Errors++
				continue
			}
			categoryIDs[ref.Category.Slug] = id
			categoryID = id
		}

		switch w.processProduct(ctx, ref, categoryID) {
		case outcomeDone:
			result.Scraped++
			w.metrics.IncScraped()
		case outcomeSkipped:
			w.metrics.IncSkipped()
		case outcomeFailed:
			result.Errors++
		case outcomeBlocked:
			slog.Warn("worker blocked by remote host", slog.Int("worker", w.id))
			result.Status = models.WorkerBlocked
			return result
		case outcomeStopped:
			return result
		}
	}

	slog.Info("worker complete",
		slog.Int("worker", w.id),
		slog.Int("scraped", result.Scraped),
		slog.Int("errors", result.Errors),
	)
	return result
}

// crawlCategories enumerates every assigned category, deduplicating
// product references by external id across the chunk: the first
// category that lists a product owns it for this run.
func (w *Worker) crawlCategories(ctx context.Context, categories []models.Category, result *models.WorkerResult) []models.ProductRef {
	var refs []models.ProductRef
	seen := make(map[string]struct{})

	for i, cat := range categories {
		if ctx.Err() != nil {
			break
		}
		slog.Debug("crawling category",
			slog.Int("worker", w.id),
			slog.Int("index", i+1),
			slog.Int("total", len(categories)),
			slog.String("name", cat.Name),
		)

		found, err := w.sitemap.EnumerateCategory(cat.URL, w.cfg.MaxPagesPerCategory)
		for _, ref := range found {
			if _, ok := seen[ref.ExternalID]; ok {
				continue
			}
			seen[ref.ExternalID] = struct{}{}
			ref.Category = cat
			refs = append(refs, ref)
		}
		w.metrics.IncCategories()

		if err != nil {
			if IsBlocked(err) {
				result.Status = models.WorkerBlocked
				return refs
			}
			result.Errors++
		}

		if !sleepCtx(ctx, w.cfg.CategoryDelay) {
			break
		}
	}
	return refs
}

func (w *Worker) ensureCategory(ctx context.Context, cat models.Category, displayOrder int) (string, error) {
	id, err := w.store.UpsertCategory(ctx, cat.Slug, cat.Name, displayOrder)
	if err != nil {
		return "", err
	}
	// The icon is decoration; losing it never costs the category.
	if err := w.store.SetCategoryIcon(ctx, cat.Slug, w.cfg.Icon(cat.Slug)); err != nil {
		slog.Debug("set category icon failed", slog.String("slug", cat.Slug), slog.Any("error", err))
	}
	return id, nil
}

// processProduct drives one product through the retry state machine:
// rate-limited failures back off exponentially, blocked responses end
// the worker, any other failure retries on the lower delay curve, and
// a record without a usable price is skipped rather than persisted.
func (w *Worker) processProduct(ctx context.Context, ref models.ProductRef, categoryID string) outcome {
	retries := 0
	for {
		record, err := w.extractor.Extract(ref.URL, ref.ExternalID)
		if err == nil {
			if record.Price == nil || *record.Price <= 0 {
				slog.Debug("skip: no usable price", slog.Int("worker", w.id), slog.String("url", ref.URL))
				return outcomeSkipped
			}
			if _, perr := w.store.UpsertProduct(ctx, record, categoryID); perr != nil {
				err = perr
			} else {
				slog.Info("product scraped",
					slog.Int("worker", w.id),
					slog.String("name", truncate(record.Name, 50)),
					slog.Float64("price", *record.Price),
					slog.String("stock", string(record.StockStatus)),
				)
				if record.Thumbnail != "" {
					// Best effort: a failed image update never fails the product.
					if ierr := w.store.UpdateCategoryImage(ctx, categoryID, record.Thumbnail); ierr != nil {
						slog.Debug("category image update failed", slog.Any("error", ierr))
					}
				}
				if w.export != nil {
					if xerr := w.export.Process(record); xerr != nil {
						slog.Debug("export failed", slog.Any("error", xerr))
					}
				}
				return outcomeDone
			}
		}

		if IsBlocked(err) {
			return outcomeBlocked
		}

		retries++
		if retries > w.cfg.MaxRetries {
			slog.Error("product abandoned after retries",
				slog.Int("worker", w.id),
				slog.String("url", ref.URL),
				slog.Int("retries", w.cfg.MaxRetries),
				slog.Any("error", err),
			)
			return outcomeFailed
		}
		w.metrics.IncRetries()

		var wait time.Duration
		if IsRateLimited(err) {
			wait = w.rateLimitBackoff(retries)
			slog.Warn("rate limited, backing off",
				slog.Int("worker", w.id),
				slog.Int("retry", retries),
				slog.Duration("wait", wait),
			)
		} else {
			wait = w.retryDelay(retries)
			slog.Warn("retrying after error",
				slog.Int("worker", w.id),
				slog.Int("retry", retries),
				slog.Duration("wait", wait),
				slog.Any("error", err),
			)
		}
		if !sleepCtx(ctx, wait) {
			return outcomeStopped
		}
	}
}

// rateLimitBackoff grows strictly with each 429: base × factor^attempt.
func (w *Worker) rateLimitBackoff(attempt int) time.Duration {
	return scaleDelay(w.cfg.RateLimit, w.cfg.BackoffFactor, attempt)
}

// retryDelay is the gentler curve for ordinary transient failures.
func (w *Worker) retryDelay(attempt int) time.Duration {
	return scaleDelay(w.cfg.RateLimit, w.cfg.BackoffFactor, attempt-1)
}

func scaleDelay(base time.Duration, factor float64, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(base) * math.Pow(factor, float64(attempt)))
}

// sleepCtx waits d unless ctx ends first; it reports whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// truncate shortens s to at most n runes without splitting a
// multi-byte character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
