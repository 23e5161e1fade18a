// Package pipeline provides the optional export sink: persisted
// products mirrored to CSV or JSONL files through a small pool of
// batching workers.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-marine/models"
	"github.com/aluiziolira/go-scrape-marine/parser"
)

// ErrPipelineClosed is returned when Process is called after shutdown.
var ErrPipelineClosed = errors.New("pipeline: closed")

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, de-duplication, and output writing.
type Pipeline struct {
	writer    OutputWriter
	productCh chan *models.Product
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	mu        sync.Mutex
	processed int64
	dropped   map[string]int
	closed    bool
	err       error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a bounded in-memory buffer and an
// LRU-capped seen-set keyed by external id.
func NewPipeline(writer OutputWriter, bufferSize, batchSize, dedupeSize int) (*Pipeline, error) {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}
	return &Pipeline{
		writer:    writer,
		productCh: make(chan *models.Product, bufferSize),
		batchSize: batchSize,
		seen:      seen,
		dropped:   make(map[string]int),
		shutdown:  make(chan struct{}),
	}, nil
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues one product for export.
func (p *Pipeline) Process(product *models.Product) error {
	if product == nil {
		return nil
	}

	p.mu.Lock()
	closed, err := p.closed, p.err
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	return p.enqueue(product)
}

// Close waits for workers to finish and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.productCh)
	})

	p.wg.Wait()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats reports processed and dropped record counts.
func (p *Pipeline) Stats() (int64, map[string]int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := make(map[string]int, len(p.dropped))
	for k, v := range p.dropped {
		dropped[k] = v
	}
	return p.processed, dropped
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.Product, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for product := range p.productCh {
		prepared := p.prepare(product)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(product *models.Product) *models.Product {
	if err := parser.ValidateProduct(product); err != nil {
		slog.Debug("export record rejected", slog.Any("error", err))
		p.drop("invalid_record")
		return nil
	}

	if found, _ := p.seen.ContainsOrAdd(product.ExternalID, struct{}{}); found {
		p.drop("duplicate_external_id")
		return nil
	}

	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
	return product
}

func (p *Pipeline) drop(kind string) {
	p.mu.Lock()
	p.dropped[kind]++
	p.mu.Unlock()
}

func (p *Pipeline) enqueue(product *models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.productCh <- product:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.productCh)
	})
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}
