package scraper

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-scrape-marine/config"
	"github.com/aluiziolira/go-scrape-marine/models"
)

// Partition splits categories into at most workerCount contiguous,
// non-overlapping chunks of ceil(len/workerCount) size. The tail chunk
// may be smaller; positions past the end produce no chunk at all.
func Partition(categories []models.Category, workerCount int) [][]models.Category {
	if workerCount <= 0 || len(categories) == 0 {
		return nil
	}

	chunkSize := (len(categories) + workerCount - 1) / workerCount
	var chunks [][]models.Category
	for start := 0; start < len(categories); start += chunkSize {
		end := start + chunkSize
		if end > len(categories) {
			end = len(categories)
		}
		chunks = append(chunks, categories[start:end])
	}
	return chunks
}

// WorkerFactory builds the worker for one chunk. Each worker gets its
// own fetcher so per-worker request pacing stays independent.
type WorkerFactory func(id int) (*Worker, error)

// Scheduler fans category chunks out to concurrent workers and
// aggregates their results in completion order.
type Scheduler struct {
	cfg       *config.Config
	newWorker WorkerFactory
}

// NewScheduler builds a scheduler around a worker factory.
func NewScheduler(cfg *config.Config, newWorker WorkerFactory) *Scheduler {
	return &Scheduler{cfg: cfg, newWorker: newWorker}
}

// Run partitions categories across the configured worker count and
// runs one worker per chunk concurrently. Workers share no mutable
// state; conflicting writes are serialized by the store's unique-key
// upserts. The first blocked result cancels the run context so the
// remaining workers stop cooperatively after their current item; the
// aggregate blocked flag is set even if other workers report ok.
func (s *Scheduler) Run(ctx context.Context, categories []models.Category) ([]models.WorkerResult, bool, error) {
	chunks := Partition(categories, s.cfg.WorkerCount)
	if len(chunks) == 0 {
		return nil, false, nil
	}

	// The item limit divides exactly across chunks, remainder to the
	// earlier ones, so the sum of allowances never exceeds the limit.
	// A chunk whose allowance comes out zero is not crawled at all.
	limits := make([]int, len(chunks))
	if s.cfg.ItemLimit > 0 {
		base := s.cfg.ItemLimit / len(chunks)
		rem := s.cfg.ItemLimit % len(chunks)
		for i := range limits {
			limits[i] = base
			if i < rem {
				limits[i]++
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan models.WorkerResult, len(chunks))
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		if s.cfg.ItemLimit > 0 && limits[i] == 0 {
			continue
		}
		worker, err := s.newWorker(i)
		if err != nil {
			cancel()
			wg.Wait()
			return nil, false, err
		}
		slog.Info("worker assigned",
			slog.Int("worker", i),
			slog.Int("categories", len(chunk)),
		)

		wg.Add(1)
		go func(w *Worker, chunk []models.Category, limit int) {
			defer wg.Done()
			results <- w.Run(runCtx, chunk, limit)
		}(worker, chunk, limits[i])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var collected []models.WorkerResult
	blocked := false
	for result := range results {
		collected = append(collected, result)
		if result.Status == models.WorkerBlocked && !blocked {
			blocked = true
			slog.Warn("worker blocked, cancelling remaining work", slog.Int("worker", result.Worker))
			cancel()
		}
	}

	return collected, blocked, nil
}
