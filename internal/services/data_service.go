package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"eventstudy/internal/config"
	"eventstudy/internal/exporter"
	"eventstudy/internal/pricecache"
	"eventstudy/pkg/contracts/domain"
)

// DataService serves the dashboard reads: the persisted run summary, the
// enriched event table and the cached price series. Everything it
// returns comes from files the last analysis run wrote.
type DataService struct {
	config *config.Config
	paths  *config.Paths
	logger *slog.Logger
}

// NewDataService creates a new data service using default logger
func NewDataService(cfg *config.Config, paths *config.Paths) *DataService {
	return NewDataServiceWithLogger(cfg, paths, slog.Default())
}

// NewDataServiceWithLogger creates a new data service with a specific logger
func NewDataServiceWithLogger(cfg *config.Config, paths *config.Paths, logger *slog.Logger) *DataService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("DataService initialized with paths",
		slog.String("price_cache_dir", paths.PriceCacheDir),
		slog.String("processed_dir", paths.ProcessedDir))

	return &DataService{
		config: cfg,
		paths:  paths,
		logger: logger,
	}
}

// GetRunSummary returns the summary of the most recent analysis run.
func (ds *DataService) GetRunSummary(ctx context.Context) (*domain.RunSummary, error) {
	path := ds.paths.GetRunSummaryPath()

	ds.logger.Debug("GetRunSummary: reading summary",
		slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRunSummary
		}
		return nil, fmt.Errorf("failed to read run summary: %w", err)
	}

	var summary domain.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse run summary: %w", err)
	}
	return &summary, nil
}

// GetEvents returns the enriched event rows, optionally filtered by
// ticker. Row order is the export order.
func (ds *DataService) GetEvents(ctx context.Context, ticker string) ([]domain.EnrichedRow, []int, error) {
	rows, windows, err := ds.loadEnriched(ctx)
	if err != nil {
		return nil, nil, err
	}
	if ticker == "" {
		return rows, windows, nil
	}

	ticker = strings.ToUpper(ticker)
	var filtered []domain.EnrichedRow
	for _, row := range rows {
		if row.Ticker == ticker {
			filtered = append(filtered, row)
		}
	}
	if len(filtered) == 0 {
		return nil, nil, ErrTickerNotFound
	}
	return filtered, windows, nil
}

// TickerInfo summarizes one ticker for the dashboard list.
type TickerInfo struct {
	Ticker     string `json:"ticker"`
	EventCount int    `json:"event_count"`
	Cached     bool   `json:"cached"`
}

// GetTickers lists the tickers present in the enriched table with event
// counts and cache presence.
func (ds *DataService) GetTickers(ctx context.Context) ([]TickerInfo, error) {
	rows, _, err := ds.loadEnriched(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.Ticker]++
	}

	tickers := make([]TickerInfo, 0, len(counts))
	for ticker, count := range counts {
		tickers = append(tickers, TickerInfo{
			Ticker:     ticker,
			EventCount: count,
			Cached:     config.FileExists(ds.paths.GetPriceCachePath(ticker)),
		})
	}
	sort.Slice(tickers, func(i, j int) bool {
		return tickers[i].Ticker < tickers[j].Ticker
	})
	return tickers, nil
}

// WindowAggregate summarizes one window across a ticker's events.
type WindowAggregate struct {
	Window       int      `json:"window"`
	Events       int      `json:"events"`
	MeanAbnormal *float64 `json:"mean_abnormal"`
	// HitRate is the share of events with a positive abnormal return,
	// over the events where it could be computed.
	HitRate *float64 `json:"hit_rate"`
}

// TickerSummary aggregates the abnormal returns of one ticker.
type TickerSummary struct {
	Ticker  string            `json:"ticker"`
	Events  int               `json:"events"`
	Windows []WindowAggregate `json:"windows"`
}

// GetTickerSummary computes per-window aggregates for one ticker from
// the enriched table. Missing returns are excluded from the aggregates,
// never counted as zero.
func (ds *DataService) GetTickerSummary(ctx context.Context, ticker string) (*TickerSummary, error) {
	rows, windows, err := ds.GetEvents(ctx, ticker)
	if err != nil {
		return nil, err
	}

	summary := &TickerSummary{
		Ticker: strings.ToUpper(ticker),
		Events: len(rows),
	}
	for _, w := range windows {
		agg := WindowAggregate{Window: w, Events: len(rows)}
		var sum float64
		var hits, computed int
		for _, row := range rows {
			abn := row.Windows[w].Abnormal
			if abn == nil {
				continue
			}
			computed++
			sum += *abn
			if *abn > 0 {
				hits++
			}
		}
		if computed > 0 {
			mean := sum / float64(computed)
			rate := float64(hits) / float64(computed)
			agg.MeanAbnormal = &mean
			agg.HitRate = &rate
		}
		summary.Windows = append(summary.Windows, agg)
	}
	return summary, nil
}

// GetEventDetail returns the enriched row for one ticker and event date.
func (ds *DataService) GetEventDetail(ctx context.Context, ticker, date string) (*domain.EnrichedRow, error) {
	rows, _, err := ds.GetEvents(ctx, ticker)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].EventDate.Format(domain.DateOnly) == date {
			return &rows[i], nil
		}
	}
	return nil, ErrEventNotFound
}

// GetTickerHistory returns the cached price series for a ticker.
func (ds *DataService) GetTickerHistory(ctx context.Context, ticker string) (*domain.PriceSeries, error) {
	if ticker == "" {
		return nil, ErrInvalidInput
	}
	path := ds.paths.GetPriceCachePath(ticker)

	ds.logger.Debug("GetTickerHistory: reading cached series",
		slog.String("ticker", ticker),
		slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrTickerNotFound
		}
		return nil, fmt.Errorf("failed to open cached series: %w", err)
	}
	defer f.Close()

	series, err := pricecache.ReadSeries(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cached series for %s: %w", ticker, err)
	}
	return &series, nil
}

// DownloadFile serves an exported output file. Only files inside the
// processed directory are reachable; anything else is rejected.
func (ds *DataService) DownloadFile(ctx context.Context, w http.ResponseWriter, r *http.Request, filename string) error {
	cleaned := filepath.Clean(filepath.FromSlash(filename))

	filePath := filepath.Join(ds.paths.ProcessedDir, cleaned)
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return ErrInvalidInput
	}
	absDir, err := filepath.Abs(ds.paths.ProcessedDir)
	if err != nil {
		return ErrInvalidInput
	}
	// A prefix check alone would admit sibling directories that share
	// the prefix, so judge containment on the relative path.
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		ds.logger.Warn("Attempted directory traversal",
			slog.String("requested_path", filename),
			slog.String("resolved_path", absPath))
		return ErrInvalidInput
	}

	if !config.FileExists(absPath) {
		return ErrFileNotFound
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(cleaned)))
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(w, r, absPath)
	return nil
}

// loadEnriched reads the exported table back into rows.
func (ds *DataService) loadEnriched(ctx context.Context) ([]domain.EnrichedRow, []int, error) {
	path := ds.paths.GetEnrichedCSVPath()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNoEnrichedData
		}
		return nil, nil, fmt.Errorf("failed to open enriched table: %w", err)
	}
	defer f.Close()

	rows, windows, err := exporter.ReadEnrichedCSV(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse enriched table: %w", err)
	}
	return rows, windows, nil
}
