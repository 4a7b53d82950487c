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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shkang-dev/ipo-crawler/config"
	"github.com/shkang-dev/ipo-crawler/crawler"
	"github.com/shkang-dev/ipo-crawler/enrich"
	"github.com/shkang-dev/ipo-crawler/exporter"
	"github.com/shkang-dev/ipo-crawler/models"
	"github.com/shkang-dev/ipo-crawler/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()

	startYearDefault := defaultCfg.StartYear
	if value, ok, err := config.EnvInt("IPO_START_YEAR"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid IPO_START_YEAR: %v\n", err)
		os.Exit(1)
	} else if ok {
		startYearDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("IPO_OUTPUT"); ok {
		outputDefault = value
	}
	marketDefault := defaultCfg.MarketDataURL
	if value, ok := config.EnvString("IPO_MARKET_URL"); ok {
		marketDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("IPO_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	startYear := flag.Int("start-year", startYearDefault, "First year to crawl in range mode")
	year := flag.Int("year", 0, "Crawl a single year instead of the full range")
	monthsFlag := flag.String("months", "", "Months to crawl for -year, e.g. 1,2,3 (default: all)")
	daily := flag.Bool("daily", false, "Crawl only today's calendar month")
	calendarURL := flag.String("calendar-url", defaultCfg.CalendarURL, "Calendar URL template (year, month)")
	marketURL := flag.String("market-url", marketDefault, "Quote API base URL; empty disables enrichment")
	parallelism := flag.Int("parallel", defaultCfg.Parallelism, "Concurrent detail fetches within a month")
	delayMs := flag.Int("delay", int(defaultCfg.Delay/time.Millisecond), "Delay between detail fetches (milliseconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per detail page")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	respectRobots := flag.Bool("respect-robots", false, "Respect robots.txt directives")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: xlsx, csv, json, or dual")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	now := time.Now()

	cfg := defaultCfg
	cfg.CalendarURL = *calendarURL
	cfg.MarketDataURL = *marketURL
	cfg.StartYear = *startYear
	cfg.Parallelism = *parallelism
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.RespectRobotsTxt = *respectRobots
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	cfg.DayLimit = now.Day()

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	months, err := parseMonths(*monthsFlag)
	if err != nil {
		slog.Error("invalid months", slog.Any("error", err))
		os.Exit(1)
	}

	calendar, err := scraper.NewCalendar(cfg)
	if err != nil {
		slog.Error("initialising calendar source", slog.Any("error", err))
		os.Exit(1)
	}
	details, err := scraper.NewDetail(cfg)
	if err != nil {
		slog.Error("initialising detail source", slog.Any("error", err))
		os.Exit(1)
	}

	var enricher crawler.Enricher
	if cfg.MarketDataURL != "" {
		priceEnricher, err := enrich.NewPriceEnricher(enrich.NewMarketClient(cfg), cfg.TickerCacheSize)
		if err != nil {
			slog.Error("initialising price enricher", slog.Any("error", err))
			os.Exit(1)
		}
		enricher = priceEnricher
	}

	orchestrator, err := crawler.New(cfg, calendar, details, enricher)
	if err != nil {
		slog.Error("initialising orchestrator", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing current item")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(orchestrator.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	startTime := time.Now()
	reports, runErr := runReports(ctx, orchestrator, cfg.StartYear, *year, months, *daily, now)
	if runErr != nil && len(reports) == 0 {
		slog.Error("crawl failed", slog.Any("error", runErr))
		os.Exit(1)
	}
	if runErr != nil {
		slog.Warn("crawl interrupted, exporting partial results", slog.Any("error", runErr))
	}

	for _, report := range reports {
		if err := writer.Export(report); err != nil {
			slog.Error("export failed", slog.Int("year", report.Year), slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(reports, time.Since(startTime), cfg.OutputFile, calendar.SpacFiltered())
}

// runReports picks the crawl window: today only, one year, or the whole
// range from startYear.
func runReports(ctx context.Context, o *crawler.Orchestrator, startYear, year int, months []int, daily bool, now time.Time) ([]*models.ScrapeReport, error) {
	switch {
	case daily:
		report, err := o.Run(ctx, now.Year(), []int{int(now.Month())})
		if report == nil {
			return nil, err
		}
		return []*models.ScrapeReport{report}, err
	case year != 0:
		if len(months) == 0 {
			months = allMonths()
		}
		report, err := o.Run(ctx, year, months)
		if report == nil {
			return nil, err
		}
		return []*models.ScrapeReport{report}, err
	default:
		return o.RunRange(ctx, startYear, now)
	}
}

func parseMonths(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	months := make([]int, 0, len(parts))
	for _, part := range parts {
		month, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("month %q is not a number", part)
		}
		months = append(months, month)
	}
	return months, nil
}

func allMonths() []int {
	months := make([]int, 12)
	for i := range months {
		months[i] = i + 1
	}
	return months
}

func createWriter(format, filename string) (exporter.ReportWriter, error) {
	switch format {
	case "xlsx":
		return exporter.NewExcelWriter(filename)
	case "csv":
		return exporter.NewCSVWriter(filename)
	case "json":
		return exporter.NewJSONWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return exporter.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(reports []*models.ScrapeReport, duration time.Duration, outputFile string, spacFiltered int64) {
	attempted, succeeded, failed, duplicates := 0, 0, 0, 0
	monthFailures := 0
	reasons := make(map[models.FailureReason]int)
	for _, report := range reports {
		attempted += report.Attempted
		succeeded += report.Succeeded
		failed += report.Failed
		duplicates += report.Duplicates
		monthFailures += len(report.MonthFailures)
		for _, failure := range report.Failures {
			reasons[failure.Reason]++
		}
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")
	fmt.Printf("  Years:          %d\n", len(reports))
	fmt.Printf("  Attempted:      %d\n", attempted)
	fmt.Printf("  Succeeded:      %d\n", succeeded)
	fmt.Printf("  Failed:         %d\n", failed)
	fmt.Printf("  Duplicates:     %d\n", duplicates)
	fmt.Printf("  SPACs skipped:  %d\n", spacFiltered)
	if monthFailures > 0 {
		fmt.Printf("  Months missed:  %d\n", monthFailures)
	}
	if len(reasons) > 0 {
		fmt.Printf("  Failure types:  %v\n", reasons)
	}
	fmt.Printf("  Duration:       %v\n", duration)
	fmt.Printf("  Output file:    %s\n", outputFile)
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
