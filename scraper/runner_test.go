package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aluiziolira/go-scrape-marine/config"
	"github.com/aluiziolira/go-scrape-marine/models"
)

type fakeDiscoverer struct {
	categories []models.Category
	err        error
}

func (d *fakeDiscoverer) DiscoverCategories() ([]models.Category, error) {
	return d.categories, d.err
}

// runnerFixture wires a runner over a single in-memory worker that
// scrapes one product per category.
func runnerFixture(cfg *config.Config, st *fakeStore, cats []models.Category, blockFirst bool) *Runner {
	factory := func(id int) (*Worker, error) {
		refs := make(map[string][]models.ProductRef)
		extractor := newFakeExtractor()
		for i, cat := range cats {
			ext := fmt.Sprintf("%d00", i+1)
			url := fmt.Sprintf("http://example.test/en/%s-p.html", ext)
			refs[cat.URL] = []models.ProductRef{{ExternalID: ext, URL: url}}
			if blockFirst && i == 0 {
				extractor.script(url, extractStep{err: classifyError(nil, http.StatusForbidden)})
			} else {
				extractor.script(url, extractStep{record: priced(ext, 10)})
			}
		}
		enum := &fakeEnumerator{refs: refs}
		return NewWorker(id, cfg, enum, extractor, st, nil, nil), nil
	}
	scheduler := NewScheduler(cfg, factory)
	return NewRunner(cfg, &fakeDiscoverer{categories: cats}, scheduler, st, nil)
}

func TestRunnerUnboundedRunReconcilesStale(t *testing.T) {
	cfg := workerConfig()
	cfg.WorkerCount = 1
	cats := makeCategories(2)
	st := newFakeStore()

	summary, err := runnerFixture(cfg, st, cats, false).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Status != models.RunCompleted {
		t.Fatalf("status=%q, want completed", summary.Status)
	}
	if summary.Scraped != 2 || summary.Errors != 0 {
		t.Fatalf("scraped=%d errors=%d, want 2/0", summary.Scraped, summary.Errors)
	}
	if !st.staleCalled {
		t.Fatalf("unbounded run must reconcile stale products")
	}
	if summary.Stale != 1 {
		t.Fatalf("stale=%d, want 1", summary.Stale)
	}
	if st.finishCalls != 1 || st.finishStatus != models.RunCompleted {
		t.Fatalf("finish calls=%d status=%q, want 1/completed", st.finishCalls, st.finishStatus)
	}
}

func TestRunnerBoundedRunSkipsStale(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(*config.Config)
	}{
		{"item limit", func(cfg *config.Config) { cfg.ItemLimit = 10 }},
		{"category limit", func(cfg *config.Config) { cfg.MaxCategories = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := workerConfig()
			cfg.WorkerCount = 1
			tt.tweak(cfg)
			cats := makeCategories(2)
			st := newFakeStore()

			summary, err := runnerFixture(cfg, st, cats, false).Run(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if st.staleCalled {
				t.Fatalf("bounded run must never mark stale products")
			}
			if summary.Stale != 0 {
				t.Fatalf("stale=%d, want 0", summary.Stale)
			}
		})
	}
}

func TestRunnerInterruptedRunSkipsStale(t *testing.T) {
	cfg := workerConfig()
	cfg.WorkerCount = 1
	cats := makeCategories(3)
	st := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factory := func(id int) (*Worker, error) {
		refs := make(map[string][]models.ProductRef)
		extractor := newFakeExtractor()
		for i, cat := range cats {
			ext := fmt.Sprintf("%d00", i+1)
			url := fmt.Sprintf("http://example.test/en/%s-p.html", ext)
			refs[cat.URL] = []models.ProductRef{{ExternalID: ext, URL: url}}
			extractor.script(url, extractStep{record: priced(ext, 10)})
		}
		// The shutdown signal lands while the first product is in flight.
		extractor.onCall = func() { cancel() }
		enum := &fakeEnumerator{refs: refs}
		return NewWorker(id, cfg, enum, extractor, st, nil, nil), nil
	}
	scheduler := NewScheduler(cfg, factory)
	runner := NewRunner(cfg, &fakeDiscoverer{categories: cats}, scheduler, st, nil)

	summary, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Status != models.RunInterrupted {
		t.Fatalf("status=%q, want interrupted", summary.Status)
	}
	if summary.Scraped >= 3 {
		t.Fatalf("scraped=%d, expected a cut-short run", summary.Scraped)
	}
	// Partial coverage must never be mistaken for absence.
	if st.staleCalled {
		t.Fatalf("interrupted run must not reconcile stale products")
	}
	if st.finishCalls != 1 || st.finishStatus != models.RunInterrupted {
		t.Fatalf("finish calls=%d status=%q, want 1/interrupted", st.finishCalls, st.finishStatus)
	}
}

func TestRunnerMaxCategoriesCapsDiscovery(t *testing.T) {
	cfg := workerConfig()
	cfg.WorkerCount = 1
	cfg.MaxCategories = 1
	cats := makeCategories(3)
	st := newFakeStore()

	summary, err := runnerFixture(cfg, st, cats, false).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Categories != 1 {
		t.Fatalf("categories=%d, want 1", summary.Categories)
	}
	if summary.Scraped != 1 {
		t.Fatalf("scraped=%d, want 1", summary.Scraped)
	}
}

func TestRunnerBlockedRun(t *testing.T) {
	cfg := workerConfig()
	cfg.WorkerCount = 1
	cats := makeCategories(1)
	st := newFakeStore()

	summary, err := runnerFixture(cfg, st, cats, true).Run(context.Background())
	if !errors.Is(err, ErrRunBlocked) {
		t.Fatalf("err=%v, want ErrRunBlocked", err)
	}
	if summary.Status != models.RunBlocked {
		t.Fatalf("status=%q, want blocked", summary.Status)
	}
	// The ledger is finalized exactly once, as blocked, and stale
	// reconciliation never runs on an aborted run.
	if st.finishCalls != 1 || st.finishStatus != models.RunBlocked {
		t.Fatalf("finish calls=%d status=%q, want 1/blocked", st.finishCalls, st.finishStatus)
	}
	if st.staleCalled {
		t.Fatalf("blocked run must not reconcile stale products")
	}
}

func TestRunnerDiscoveryFailureFinalizesLedger(t *testing.T) {
	cfg := workerConfig()
	cfg.WorkerCount = 1
	st := newFakeStore()
	discover := &fakeDiscoverer{err: classifyError(nil, http.StatusInternalServerError)}
	scheduler := NewScheduler(cfg, func(id int) (*Worker, error) {
		t.Fatalf("scheduler must not run when discovery fails")
		return nil, nil
	})

	_, err := NewRunner(cfg, discover, scheduler, st, nil).Run(context.Background())
	if err == nil {
		t.Fatalf("expected discovery error to surface")
	}
	if st.finishCalls != 1 || st.finishStatus != models.RunBlocked {
		t.Fatalf("finish calls=%d status=%q, want 1/blocked", st.finishCalls, st.finishStatus)
	}
}

func TestRunnerUpdatesCategoryCounts(t *testing.T) {
	cfg := workerConfig()
	cfg.WorkerCount = 1
	cats := makeCategories(1)
	st := newFakeStore()

	if _, err := runnerFixture(cfg, st, cats, false).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, call := range st.calls {
		if call == "update_counts" {
			found = true
		}
	}
	if !found {
		t.Fatalf("category counts never refreshed: %v", st.calls)
	}
}
