package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-listings/config"
	"github.com/aluiziolira/go-scrape-listings/models"
	"github.com/aluiziolira/go-scrape-listings/pipeline"
	"github.com/aluiziolira/go-scrape-listings/scraper"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	configDefault := "config.json"
	if value, ok := config.EnvString("SCRAPER_CONFIG"); ok {
		configDefault = value
	}

	configPath := flag.String("config", configDefault, "Path to the JSON or YAML config file")
	outputFile := flag.String("output", "", "Output file path (overrides config)")
	outputFormat := flag.String("format", "", "Output format: csv, json, dual, or postgres (overrides config)")
	fetcher := flag.String("fetcher", "", "Page source: browser or http (overrides config)")
	headless := flag.Bool("headless", true, "Run the browser without a window (overrides config)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Error("config file not found", slog.String("path", *configPath))
		} else {
			slog.Error("invalid configuration", slog.Any("error", err))
		}
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(); err != nil {
		slog.Error("invalid environment configuration", slog.Any("error", err))
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "fetcher":
			cfg.Fetcher = strings.ToLower(*fetcher)
		case "headless":
			cfg.Headless = *headless
		case "v":
			cfg.Verbose = *verbose
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Verbose {
		level.Set(slog.LevelDebug)
	}

	s, err := scraper.NewScraper(cfg, nil, logger)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := watchSignals(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	defer shutdownMetrics(metricsServer)

	result, err := s.Run(ctx)
	if err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		shutdownMetrics(metricsServer)
		os.Exit(1)
	}

	if len(result.Listings) == 0 {
		slog.Warn("no listings to save", slog.String("search_term", cfg.SearchTerm))
		printSummary(result, nil, "")
		return
	}

	writer, err := createWriter(ctx, cfg, result.RunID)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		shutdownMetrics(metricsServer)
		os.Exit(1)
	}

	p := pipeline.NewPipeline(writer, logger)
	if err := p.Process(result.Listings); err != nil {
		writer.Close()
		if errors.Is(err, pipeline.ErrNoListings) {
			slog.Warn("no listings to save", slog.String("search_term", cfg.SearchTerm))
			printSummary(result, p.GetMetrics(), "")
			return
		}
		slog.Error("writing listings failed", slog.Any("error", err))
		shutdownMetrics(metricsServer)
		os.Exit(1)
	}

	if err := writer.Validate(); err != nil {
		writer.Close()
		slog.Error("output validation failed", slog.Any("error", err))
		shutdownMetrics(metricsServer)
		os.Exit(1)
	}
	if err := writer.Close(); err != nil {
		slog.Error("close writer", slog.Any("error", err))
		shutdownMetrics(metricsServer)
		os.Exit(1)
	}

	printSummary(result, p.GetMetrics(), outputTarget(cfg, writer))
}

func createWriter(ctx context.Context, cfg *config.Config, runID string) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(cfg.OutputFile)
	case "csv":
		return pipeline.NewCSVWriter(cfg.OutputFile)
	case "dual":
		return pipeline.NewDualWriter(cfg.OutputFile)
	case "postgres":
		return pipeline.NewPostgresWriter(ctx, cfg.DatabaseURL, runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func outputTarget(cfg *config.Config, writer pipeline.OutputWriter) string {
	switch w := writer.(type) {
	case *pipeline.DualWriter:
		return strings.Join(w.Paths(), ", ")
	case *pipeline.PostgresWriter:
		return "postgres (search_listings)"
	default:
		return cfg.OutputFile
	}
}

// watchSignals returns a context canceled when one of sigs arrives. Only a
// real signal is logged; calling stop on the way out stays silent.
func watchSignals(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		select {
		case sig := <-ch:
			slog.Info("shutdown signal received, closing browser", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

func shutdownMetrics(server *http.Server) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.ScraperResult, metrics map[string]interface{}, output string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Search complete")

	written := int64(0)
	if processed, ok := metrics["processed_listings"].(int64); ok {
		written = processed
	}

	fmt.Printf("  Run ID:        %s\n", result.RunID)
	fmt.Printf("  URL:           %s\n", result.URL)
	fmt.Printf("  Nodes found:   %d\n", result.NodeCount)
	fmt.Printf("  Extracted:     %d\n", len(result.Listings))
	fmt.Printf("  Skipped:       %d\n", result.SkippedCount)
	fmt.Printf("  Errors:        %d\n", result.ErrorCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Written:       %d\n", written)
	fmt.Printf("  Duration:      %v\n", result.Duration())
	if output != "" {
		fmt.Printf("  Output:        %s\n", output)
	}
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
