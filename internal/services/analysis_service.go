package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"eventstudy/internal/config"
	"eventstudy/internal/dataset"
	"eventstudy/internal/exporter"
	"eventstudy/internal/infrastructure"
	"eventstudy/internal/pricecache"
	"eventstudy/internal/returns"
	"eventstudy/pkg/contracts/domain"
)

// EventLoader loads the pinned dataset revision into events.
type EventLoader interface {
	Load(ctx context.Context, revision string) ([]domain.Event, dataset.LoadStats, error)
}

// PriceStore is the cache surface the analysis run needs: reads plus the
// per-run outcome counters.
type PriceStore interface {
	returns.PriceGetter
	Stats() pricecache.Stats
}

// RunOptions are the per-invocation knobs of one analysis run.
type RunOptions struct {
	// Refresh bypasses cache coverage checks and refetches every ticker.
	Refresh bool
}

// AnalysisService drives one pipeline run: load events, compute returns
// through the price cache, export the enriched table and persist the run
// summary.
type AnalysisService struct {
	cfg     *config.Config
	paths   *config.Paths
	loader  EventLoader
	prices  PriceStore
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// NewAnalysisService wires the analysis pipeline. Metrics may be nil.
func NewAnalysisService(cfg *config.Config, paths *config.Paths, loader EventLoader, prices PriceStore, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		cfg:     cfg,
		paths:   paths,
		loader:  loader,
		prices:  prices,
		logger:  logger.With(slog.String("component", "analysis_service")),
		metrics: metrics,
	}
}

// Run executes the pipeline once and returns the run summary. Config and
// dataset failures abort the run; per-ticker price failures degrade the
// affected rows instead.
func (s *AnalysisService) Run(ctx context.Context, opts RunOptions) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID:           infrastructure.GenerateTraceID(),
		DatasetRevision: s.cfg.Dataset.Revision,
		StartedAt:       time.Now().UTC(),
	}
	ctx = infrastructure.WithTraceID(ctx, summary.RunID)

	s.logger.InfoContext(ctx, "analysis run started",
		slog.String("run_id", summary.RunID),
		slog.String("revision", s.cfg.Dataset.Revision),
		slog.Bool("refresh", opts.Refresh))

	events, stats, err := s.loader.Load(ctx, s.cfg.Dataset.Revision)
	if err != nil {
		return nil, err
	}
	summary.EventsLoaded = stats.Loaded
	summary.RowsDropped = stats.Dropped

	engine := returns.NewEngine(returns.Config{
		Windows:          s.cfg.Analysis.Windows,
		BenchmarkTicker:  s.cfg.Prices.BenchmarkTicker,
		AnchorSearchDays: s.cfg.Analysis.AnchorSearchDays,
		Refresh:          opts.Refresh,
		PrefetchWorkers:  s.cfg.Prices.FetchWorkers,
	}, s.prices, s.logger, s.metrics)

	var rows []domain.EnrichedRow
	if len(events) > 0 {
		rng := s.priceRange(events)
		var engSummary returns.Summary
		rows, engSummary, err = engine.Compute(ctx, events, rng)
		if err != nil {
			return nil, err
		}
		summary.AnchorsUnresolved = engSummary.AnchorsUnresolved
		summary.WindowsMissing = engSummary.WindowsMissing
		summary.TickersFailed = engSummary.TickersFailed
		summary.FailedTickers = engSummary.FailedTickers
	} else {
		s.logger.WarnContext(ctx, "no events to analyze, writing empty outputs")
	}

	if err := s.export(ctx, rows, engine.Windows()); err != nil {
		return nil, err
	}

	cacheStats := s.prices.Stats()
	summary.CacheHits = cacheStats.Hits
	summary.CacheMisses = cacheStats.Misses
	summary.CachePartialMisses = cacheStats.PartialMisses
	summary.CacheRefreshes = cacheStats.Refreshes
	summary.FinishedAt = time.Now().UTC()

	if err := s.persistSummary(summary); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "analysis run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("events", summary.EventsLoaded),
		slog.Int("anchors_unresolved", summary.AnchorsUnresolved),
		slog.Int("windows_missing", summary.WindowsMissing),
		slog.Int("cache_hits", summary.CacheHits),
		slog.Int("cache_misses", summary.CacheMisses),
		slog.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))

	return summary, nil
}

// priceRange derives the fetch range from the event dates: padded before
// the earliest event and past the latest by enough calendar days to hold
// the longest trading-day window.
func (s *AnalysisService) priceRange(events []domain.Event) domain.DateRange {
	minDate := events[0].EventDate
	maxDate := events[0].EventDate
	for _, e := range events[1:] {
		if e.EventDate.Before(minDate) {
			minDate = e.EventDate
		}
		if e.EventDate.After(maxDate) {
			maxDate = e.EventDate
		}
	}

	pad := s.cfg.Analysis.CalendarPadDays
	start := minDate.AddDate(0, 0, -pad)
	end := maxDate.AddDate(0, 0, s.cfg.MaxWindow()*2+pad)
	return domain.NewDateRange(start, end)
}

// export writes the enriched table as CSV and as an Excel workbook.
func (s *AnalysisService) export(ctx context.Context, rows []domain.EnrichedRow, windows []int) error {
	if err := s.paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to prepare output directories: %w", err)
	}

	header := exporter.EnrichedHeader(rows, windows)
	records := exporter.EnrichedRecords(rows, windows, header)
	writer := exporter.NewCSVWriter(s.paths.ProcessedDir)
	if err := writer.WriteSimpleCSV(s.paths.GetEnrichedCSVPath(), header, records); err != nil {
		return fmt.Errorf("failed to export enriched CSV: %w", err)
	}

	if err := exporter.WriteEnrichedWorkbook(s.paths.GetEnrichedXLSXPath(), rows, windows); err != nil {
		return fmt.Errorf("failed to export enriched workbook: %w", err)
	}

	s.logger.InfoContext(ctx, "enriched table exported",
		slog.Int("rows", len(rows)),
		slog.String("csv", s.paths.GetEnrichedCSVPath()),
		slog.String("xlsx", s.paths.GetEnrichedXLSXPath()))
	return nil
}

// persistSummary writes the run summary next to the exported table.
func (s *AnalysisService) persistSummary(summary *domain.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := os.WriteFile(s.paths.GetRunSummaryPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}
