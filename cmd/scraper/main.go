package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-marine/config"
	"github.com/aluiziolira/go-scrape-marine/models"
	"github.com/aluiziolira/go-scrape-marine/pipeline"
	"github.com/aluiziolira/go-scrape-marine/scraper"
	"github.com/aluiziolira/go-scrape-marine/store"
)

const (
	exitBlocked = 1
	exitStartup = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultCfg := config.DefaultConfig()

	workersDefault := defaultCfg.WorkerCount
	if value, ok, err := config.EnvInt("SCRAPER_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_WORKERS: %v\n", err)
		return exitStartup
	} else if ok {
		workersDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Base URL of the catalog site")
	databaseURL := flag.String("database-url", defaultCfg.DatabaseURL, "Postgres connection string (defaults to DATABASE_URL)")
	limit := flag.Int("limit", 0, "Max products to scrape (0 = all)")
	maxPages := flag.Int("max-pages", 0, "Max pages per category (0 = all)")
	maxCategories := flag.Int("max-categories", 0, "Max categories to crawl (0 = all)")
	workers := flag.Int("workers", workersDefault, "Number of parallel workers")
	rateLimitSec := flag.Float64("rate-limit", defaultCfg.RateLimit.Seconds(), "Minimum delay between requests (seconds)")
	timeoutSec := flag.Float64("timeout", defaultCfg.RequestTimeout.Seconds(), "Request timeout (seconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per product")
	backoffFactor := flag.Float64("backoff-factor", defaultCfg.BackoffFactor, "Exponential backoff multiplier for rate-limited retries")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	outputFile := flag.String("output", "", "Optional export file path (disabled when empty)")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Export format: csv, json, or dual")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.BaseURL = strings.TrimSuffix(*baseURL, "/")
	cfg.DatabaseURL = *databaseURL
	cfg.ItemLimit = *limit
	cfg.MaxPagesPerCategory = *maxPages
	cfg.MaxCategories = *maxCategories
	cfg.WorkerCount = *workers
	cfg.RateLimit = time.Duration(*rateLimitSec * float64(time.Second))
	cfg.RequestTimeout = time.Duration(*timeoutSec * float64(time.Second))
	cfg.MaxRetries = *maxRetries
	cfg.BackoffFactor = *backoffFactor
	cfg.MetricsAddr = *metricsAddr
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.Verbose = *verbose

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return exitStartup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	pg, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connecting to database", slog.Any("error", err))
		return exitStartup
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		slog.Error("ensuring schema", slog.Any("error", err))
		return exitStartup
	}

	metrics := scraper.NewMetrics()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	var export *pipeline.Pipeline
	if cfg.OutputFile != "" {
		writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
		if err != nil {
			slog.Error("creating export writer", slog.Any("error", err))
			return exitStartup
		}
		export, err = pipeline.NewPipeline(writer, cfg.BufferSize, cfg.BatchSize, cfg.DedupeSize)
		if err != nil {
			slog.Error("creating export pipeline", slog.Any("error", err))
			return exitStartup
		}
		export.Start(2)
		defer func() {
			if err := export.Close(); err != nil {
				slog.Error("export pipeline shutdown failed", slog.Any("error", err))
			} else if err := writer.Validate(); err != nil {
				slog.Warn("export validation", slog.Any("error", err))
			}
			if err := writer.Close(); err != nil {
				slog.Error("close export writer", slog.Any("error", err))
			}
		}()
	}

	newWorker := func(id int) (*scraper.Worker, error) {
		fetcher, err := scraper.NewFetcher(cfg, metrics)
		if err != nil {
			return nil, err
		}
		sitemap := scraper.NewSitemap(cfg, fetcher)
		extractor := scraper.NewExtractor(cfg, fetcher)
		var exporter scraper.Exporter
		if export != nil {
			exporter = export
		}
		return scraper.NewWorker(id, cfg, sitemap, extractor, pg, metrics, exporter), nil
	}

	rootFetcher, err := scraper.NewFetcher(cfg, metrics)
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return exitStartup
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("workers", cfg.WorkerCount),
		slog.Int("limit", cfg.ItemLimit),
		slog.Int("max_categories", cfg.MaxCategories),
	)

	runner := scraper.NewRunner(
		cfg,
		scraper.NewSitemap(cfg, rootFetcher),
		scraper.NewScheduler(cfg, newWorker),
		pg,
		metrics,
	)

	summary, err := runner.Run(ctx)
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := metricsServer.Shutdown(shutdownCtx); serr != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", serr))
		}
		cancel()
	}
	if err != nil {
		if errors.Is(err, scraper.ErrRunBlocked) {
			printSummary(summary)
			slog.Error("run aborted: blocked by remote host")
			return exitBlocked
		}
		slog.Error("scraping failed", slog.Any("error", err))
		return exitStartup
	}

	printSummary(summary)
	return 0
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(summary *models.RunSummary) {
	if summary == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Run:           %s\n", summary.RunID)
	fmt.Printf("  Status:        %s\n", summary.Status)
	fmt.Printf("  Categories:    %d\n", summary.Categories)
	fmt.Printf("  Scraped:       %d\n", summary.Scraped)
	fmt.Printf("  Errors:        %d\n", summary.Errors)
	fmt.Printf("  Stale:         %d\n", summary.Stale)
	fmt.Printf("  Duration:      %v\n", summary.EndTime.Sub(summary.StartTime).Round(time.Second))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
