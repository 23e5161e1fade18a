package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-marine/config"
	"github.com/aluiziolira/go-scrape-marine/models"
)

// ErrRunBlocked is returned when the remote host blocked a worker and
// the run was aborted. The CLI maps it to a distinct exit status.
var ErrRunBlocked = errors.New("run aborted: remote host blocked the crawler")

// CategoryDiscoverer lists the site's categories.
type CategoryDiscoverer interface {
	DiscoverCategories() ([]models.Category, error)
}

// Runner ties discovery, scheduling and the run ledger together. A
// ledger entry is opened before any crawling and finalized exactly
// once on every exit path.
type Runner struct {
	cfg       *config.Config
	discover  CategoryDiscoverer
	scheduler *Scheduler
	store     Store
	metrics   *Metrics
}

// NewRunner assembles a runner over its collaborators.
func NewRunner(cfg *config.Config, discover CategoryDiscoverer, scheduler *Scheduler, store Store, metrics *Metrics) *Runner {
	return &Runner{
		cfg:       cfg,
		discover:  discover,
		scheduler: scheduler,
		store:     store,
		metrics:   metrics,
	}
}

// Run executes one scraper run. On unbounded runs (no item limit and
// no category limit) it reconciles the store afterwards, marking
// previously seen products that this run did not observe as
// unavailable. Bounded and interrupted runs skip reconciliation:
// partial coverage must never be mistaken for absence. The ledger row
// records completed, blocked or interrupted accordingly.
func (r *Runner) Run(ctx context.Context) (*models.RunSummary, error) {
	runID, err := r.store.StartRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	startedAt := time.Now().UTC()

	summary := &models.RunSummary{
		RunID:     runID,
		StartTime: startedAt,
		Status:    models.RunRunning,
	}
	slog.Info("scraper run started",
		slog.String("run_id", runID),
		slog.Int("workers", r.cfg.WorkerCount),
	)

	// The ledger row must be finalized even when discovery or
	// scheduling fails outright.
	finalized := false
	finalize := func(status models.RunStatus) {
		if finalized {
			return
		}
		finalized = true
		summary.Status = status
		summary.EndTime = time.Now().UTC()
		if ferr := r.store.FinishRun(context.WithoutCancel(ctx), runID, summary.Scraped, summary.Errors, status); ferr != nil {
			slog.Error("finish run failed", slog.String("run_id", runID), slog.Any("error", ferr))
		}
	}
	defer finalize(models.RunBlocked)

	categories, err := r.discover.DiscoverCategories()
	if err != nil {
		finalize(models.RunBlocked)
		return summary, fmt.Errorf("discover categories: %w", err)
	}
	if r.cfg.MaxCategories > 0 && len(categories) > r.cfg.MaxCategories {
		categories = categories[:r.cfg.MaxCategories]
	}
	summary.Categories = len(categories)

	results, blocked, err := r.scheduler.Run(ctx, categories)
	for _, result := range results {
		summary.Scraped += result.Scraped
		summary.Errors += result.Errors
	}
	if err != nil {
		finalize(models.RunBlocked)
		return summary, fmt.Errorf("schedule workers: %w", err)
	}

	if blocked {
		finalize(models.RunBlocked)
		return summary, ErrRunBlocked
	}

	// A cancelled run covered only part of the catalog, so it must not
	// reconcile: products the run never reached would be marked
	// unavailable. Same rule as a bounded run.
	if ctx.Err() != nil {
		slog.Info("run interrupted, skipping stale reconciliation")
		finalize(models.RunInterrupted)
		return summary, nil
	}

	if r.cfg.Unbounded() {
		stale, err := r.store.MarkStaleUnseen(ctx, startedAt)
		if err != nil {
			slog.Error("stale reconciliation failed", slog.Any("error", err))
		} else {
			summary.Stale = len(stale)
			r.metrics.AddStale(len(stale))
			if len(stale) > 0 {
				slog.Info("stale products marked unavailable", slog.Int("count", len(stale)))
			}
		}
	} else {
		slog.Info("partial run, skipping stale reconciliation")
	}

	if err := r.store.UpdateCategoryCounts(ctx); err != nil {
		slog.Error("update category counts failed", slog.Any("error", err))
	}

	finalize(models.RunCompleted)
	slog.Info("scraper run finished",
		slog.String("run_id", runID),
		slog.Int("scraped", summary.Scraped),
		slog.Int("errors", summary.Errors),
		slog.Int("stale", summary.Stale),
	)
	return summary, nil
}
