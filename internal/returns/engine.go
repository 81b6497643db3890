// Package returns computes raw and benchmark-adjusted event-window
// returns. One bad event never aborts the batch: anything that cannot be
// computed becomes an explicit missing value and a summary count.
package returns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/infrastructure"
	"eventstudy/pkg/contracts/domain"
)

// PriceGetter is the slice of the price cache the engine needs.
type PriceGetter interface {
	Get(ctx context.Context, ticker string, rng domain.DateRange, refresh bool) (domain.PriceSeries, error)
}

// Config holds the knobs of one computation run.
type Config struct {
	// Windows are the forward windows in trading days, e.g. {1, 5}.
	Windows []int
	// BenchmarkTicker is the reference instrument for abnormal returns.
	BenchmarkTicker string
	// AnchorSearchDays bounds the forward search for a trading-day
	// anchor when the event falls on a non-trading day.
	AnchorSearchDays int
	// Refresh forces a cache refresh for every ticker touched.
	Refresh bool
	// PrefetchWorkers bounds the parallel price prefetch pool.
	// Zero disables prefetching; series are then fetched on first use.
	PrefetchWorkers int
}

// Summary counts the degradations of one computation run.
type Summary struct {
	EventsProcessed   int      `json:"events_processed"`
	AnchorsUnresolved int      `json:"anchors_unresolved"`
	WindowsMissing    int      `json:"windows_missing"`
	TickersFailed     int      `json:"tickers_failed"`
	FailedTickers     []string `json:"failed_tickers,omitempty"`
}

// Engine computes enriched rows from events and cached prices.
type Engine struct {
	cfg     Config
	prices  PriceGetter
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
}

// NewEngine creates a returns engine. Windows are kept sorted so export
// column order is stable.
func NewEngine(cfg Config, prices PriceGetter, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Engine {
	windows := make([]int, len(cfg.Windows))
	copy(windows, cfg.Windows)
	sort.Ints(windows)
	cfg.Windows = windows

	if cfg.AnchorSearchDays <= 0 {
		cfg.AnchorSearchDays = 5
	}

	return &Engine{
		cfg:     cfg,
		prices:  prices,
		logger:  logger.With(slog.String("component", "returns_engine")),
		metrics: metrics,
	}
}

// Windows returns the sorted window lengths the engine computes.
func (e *Engine) Windows() []int {
	return e.cfg.Windows
}

// Compute enriches every event with return columns over rng. Output
// order matches input order. A failed ticker degrades its events to
// missing values; a failed benchmark fetch fails the whole run before
// any row is produced, since every abnormal return depends on it.
func (e *Engine) Compute(ctx context.Context, events []domain.Event, rng domain.DateRange) ([]domain.EnrichedRow, Summary, error) {
	var summary Summary

	benchmark, err := e.prices.Get(ctx, e.cfg.BenchmarkTicker, rng, e.cfg.Refresh)
	if err != nil {
		return nil, summary, apperrors.NewPriceFetchError(e.cfg.BenchmarkTicker,
			"benchmark price fetch failed, abnormal returns impossible for this run", err)
	}

	tickers := distinctTickers(events)
	seriesByTicker, failed := e.loadSeries(ctx, tickers, rng)
	summary.TickersFailed = len(failed)
	summary.FailedTickers = failed

	rows := make([]domain.EnrichedRow, 0, len(events))
	for _, event := range events {
		row := e.enrich(ctx, event, seriesByTicker, benchmark, &summary)
		rows = append(rows, row)
		summary.EventsProcessed++
		if e.metrics != nil {
			e.metrics.EventsProcessed.Add(ctx, 1)
		}
	}

	e.logger.InfoContext(ctx, "returns computed",
		slog.Int("events", summary.EventsProcessed),
		slog.Int("anchors_unresolved", summary.AnchorsUnresolved),
		slog.Int("windows_missing", summary.WindowsMissing),
		slog.Int("tickers_failed", summary.TickersFailed))

	return rows, summary, nil
}

// distinctTickers lists the tickers in first-appearance order.
func distinctTickers(events []domain.Event) []string {
	seen := make(map[string]bool, len(events))
	var tickers []string
	for _, e := range events {
		if !seen[e.Ticker] {
			seen[e.Ticker] = true
			tickers = append(tickers, e.Ticker)
		}
	}
	return tickers
}

// loadSeries fetches each distinct ticker's series through the cache,
// optionally with a bounded worker pool. A per-ticker failure is logged
// and recorded; its events will carry missing values.
func (e *Engine) loadSeries(ctx context.Context, tickers []string, rng domain.DateRange) (map[string]domain.PriceSeries, []string) {
	type result struct {
		ticker string
		series domain.PriceSeries
		err    error
	}

	results := make([]result, len(tickers))

	if e.cfg.PrefetchWorkers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.PrefetchWorkers)
		for i, ticker := range tickers {
			g.Go(func() error {
				series, err := e.prices.Get(gctx, ticker, rng, e.cfg.Refresh)
				results[i] = result{ticker: ticker, series: series, err: err}
				return nil
			})
		}
		// Workers never return errors; failures are per-ticker results.
		g.Wait()
	} else {
		for i, ticker := range tickers {
			series, err := e.prices.Get(ctx, ticker, rng, e.cfg.Refresh)
			results[i] = result{ticker: ticker, series: series, err: err}
		}
	}

	seriesByTicker := make(map[string]domain.PriceSeries, len(tickers))
	var failed []string
	for _, r := range results {
		if r.err != nil {
			e.logger.WarnContext(ctx, "price series unavailable, events for ticker will carry missing returns",
				slog.String("ticker", r.ticker),
				slog.String("error", r.err.Error()))
			failed = append(failed, r.ticker)
			continue
		}
		seriesByTicker[r.ticker] = r.series
	}
	return seriesByTicker, failed
}

// enrich builds one row. Every configured window is attempted
// independently so a missing 5-day window never blocks a 1-day one.
func (e *Engine) enrich(ctx context.Context, event domain.Event, seriesByTicker map[string]domain.PriceSeries, benchmark domain.PriceSeries, summary *Summary) domain.EnrichedRow {
	row := domain.EnrichedRow{
		Event:   event,
		Windows: make(map[int]domain.WindowReturns, len(e.cfg.Windows)),
	}
	for _, w := range e.cfg.Windows {
		row.Windows[w] = domain.WindowReturns{}
	}

	series, ok := seriesByTicker[event.Ticker]
	if !ok {
		summary.AnchorsUnresolved++
		return row
	}

	anchorIdx, ok := e.resolveAnchor(series, event.EventDate)
	if !ok {
		summary.AnchorsUnresolved++
		e.logger.DebugContext(ctx, "event anchor unresolved",
			slog.String("ticker", event.Ticker),
			slog.String("event_date", event.EventDate.Format(domain.DateOnly)))
		return row
	}

	anchorDate := series.Points[anchorIdx].Date.Format(domain.DateOnly)
	row.AnchorDate = &anchorDate

	benchAnchorIdx, benchOK := e.resolveAnchor(benchmark, event.EventDate)

	for _, w := range e.cfg.Windows {
		wr := domain.WindowReturns{}

		wr.Raw = simpleReturn(series, anchorIdx, w)
		if benchOK {
			wr.Benchmark = simpleReturn(benchmark, benchAnchorIdx, w)
		}
		if wr.Raw != nil && wr.Benchmark != nil {
			abn := *wr.Raw - *wr.Benchmark
			wr.Abnormal = &abn
		}

		if wr.Raw == nil || wr.Benchmark == nil {
			summary.WindowsMissing++
		}
		row.Windows[w] = wr
	}

	return row
}

// resolveAnchor finds the index of the first observation on or after the
// event date, within the bounded forward search.
func (e *Engine) resolveAnchor(series domain.PriceSeries, eventDate time.Time) (int, bool) {
	idx := series.IndexOnOrAfter(eventDate)
	if idx < 0 {
		return 0, false
	}
	limit := domain.Midnight(eventDate).AddDate(0, 0, e.cfg.AnchorSearchDays)
	if series.Points[idx].Date.After(limit) {
		return 0, false
	}
	return idx, true
}

// simpleReturn computes price[anchor+w]/price[anchor] - 1, or nil when
// either observation is absent or the anchor price is zero.
func simpleReturn(series domain.PriceSeries, anchorIdx, window int) *float64 {
	base, ok := series.PriceAt(anchorIdx)
	if !ok || base.IsZero() {
		return nil
	}
	end, ok := series.PriceAt(anchorIdx + window)
	if !ok {
		return nil
	}
	ret, _ := end.Div(base).Sub(decimal.NewFromInt(1)).Float64()
	return &ret
}
