package returns

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "eventstudy/internal/errors"
	"eventstudy/pkg/contracts/domain"
)

// fakeGetter serves canned series per ticker and records refresh flags.
type fakeGetter struct {
	mu        sync.Mutex
	series    map[string]domain.PriceSeries
	errs      map[string]error
	refreshes []bool
}

func (f *fakeGetter) Get(ctx context.Context, ticker string, rng domain.DateRange, refresh bool) (domain.PriceSeries, error) {
	f.mu.Lock()
	f.refreshes = append(f.refreshes, refresh)
	f.mu.Unlock()
	if err, ok := f.errs[ticker]; ok {
		return domain.PriceSeries{}, err
	}
	s, ok := f.series[ticker]
	if !ok {
		return domain.PriceSeries{}, apperrors.NewPriceFetchError(ticker, "unknown ticker", nil)
	}
	return s, nil
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateOnly, s)
	require.NoError(t, err)
	return d.UTC()
}

// dailySeries builds a series of consecutive calendar days from start.
func dailySeries(t *testing.T, ticker, start string, prices ...string) domain.PriceSeries {
	t.Helper()
	first := day(t, start)
	points := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		points[i] = domain.PricePoint{
			Date:          first.AddDate(0, 0, i),
			AdjustedClose: decimal.RequireFromString(p),
		}
	}
	last := first
	if len(points) > 0 {
		last = points[len(points)-1].Date
	}
	return domain.PriceSeries{
		Ticker:       ticker,
		Points:       points,
		FetchedRange: domain.NewDateRange(first, last),
	}
}

func flatSeries(t *testing.T, ticker, start string, price string, days int) domain.PriceSeries {
	t.Helper()
	prices := make([]string, days)
	for i := range prices {
		prices[i] = price
	}
	return dailySeries(t, ticker, start, prices...)
}

func testEngine(cfg Config, prices PriceGetter) *Engine {
	if cfg.BenchmarkTicker == "" {
		cfg.BenchmarkTicker = "XBI"
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = []int{1, 5}
	}
	return NewEngine(cfg, prices, slog.Default(), nil)
}

func testRange(t *testing.T) domain.DateRange {
	return domain.NewDateRange(day(t, "2024-01-01"), day(t, "2024-01-31"))
}

func TestCompute_RawBenchmarkAndAbnormalReturns(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		"ACME": dailySeries(t, "ACME", "2024-01-02",
			"100", "101", "99", "103", "102", "104", "105", "106", "107"),
		"XBI": flatSeries(t, "XBI", "2024-01-02", "50", 9),
	}}
	engine := testEngine(Config{}, prices)

	events := []domain.Event{{
		Ticker:      "ACME",
		EventDate:   day(t, "2024-01-02"),
		QASentScore: 0.8,
	}}

	rows, summary, err := engine.Compute(context.Background(), events, testRange(t))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	require.NotNil(t, row.AnchorDate)
	assert.Equal(t, "2024-01-02", *row.AnchorDate)

	w1 := row.Windows[1]
	require.NotNil(t, w1.Raw)
	assert.InDelta(t, 0.01, *w1.Raw, 1e-12)

	w5 := row.Windows[5]
	require.NotNil(t, w5.Raw)
	assert.InDelta(t, 0.04, *w5.Raw, 1e-12)
	require.NotNil(t, w5.Benchmark)
	assert.Zero(t, *w5.Benchmark)
	require.NotNil(t, w5.Abnormal)
	assert.InDelta(t, 0.04, *w5.Abnormal, 1e-12)

	assert.Equal(t, 1, summary.EventsProcessed)
	assert.Zero(t, summary.WindowsMissing)
}

func TestCompute_ShortSeriesMissesLongWindowOnly(t *testing.T) {
	// Series covers only 3 observations past the anchor: the 5-day
	// window is missing while the 1-day window still computes.
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		"ACME": dailySeries(t, "ACME", "2024-01-02", "100", "101", "99", "103"),
		"XBI":  flatSeries(t, "XBI", "2024-01-02", "50", 20),
	}}
	engine := testEngine(Config{}, prices)

	rows, summary, err := engine.Compute(context.Background(), []domain.Event{
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}, testRange(t))
	require.NoError(t, err)

	w1 := rows[0].Windows[1]
	require.NotNil(t, w1.Raw)
	assert.InDelta(t, 0.01, *w1.Raw, 1e-12)
	require.NotNil(t, w1.Abnormal)

	w5 := rows[0].Windows[5]
	assert.Nil(t, w5.Raw)
	assert.Nil(t, w5.Abnormal)
	assert.Equal(t, 1, summary.WindowsMissing)
}

func TestCompute_NonTradingDayAdvancesAnchor(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		// First observation two days after the event date.
		"ACME": dailySeries(t, "ACME", "2024-01-04", "100", "102", "104"),
		"XBI":  flatSeries(t, "XBI", "2024-01-01", "50", 20),
	}}
	engine := testEngine(Config{Windows: []int{1}}, prices)

	rows, _, err := engine.Compute(context.Background(), []domain.Event{
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}, testRange(t))
	require.NoError(t, err)

	require.NotNil(t, rows[0].AnchorDate)
	assert.Equal(t, "2024-01-04", *rows[0].AnchorDate)
	require.NotNil(t, rows[0].Windows[1].Raw)
	assert.InDelta(t, 0.02, *rows[0].Windows[1].Raw, 1e-12)
}

func TestCompute_AnchorBeyondSearchBoundIsUnresolved(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		// First observation ten days after the event, beyond the bound.
		"ACME": dailySeries(t, "ACME", "2024-01-12", "100", "101"),
		"XBI":  flatSeries(t, "XBI", "2024-01-01", "50", 31),
	}}
	engine := testEngine(Config{Windows: []int{1}, AnchorSearchDays: 5}, prices)

	rows, summary, err := engine.Compute(context.Background(), []domain.Event{
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}, testRange(t))
	require.NoError(t, err)

	assert.Nil(t, rows[0].AnchorDate)
	assert.Nil(t, rows[0].Windows[1].Raw)
	assert.Equal(t, 1, summary.AnchorsUnresolved)
}

func TestCompute_BenchmarkFetchFailureIsFatal(t *testing.T) {
	prices := &fakeGetter{
		series: map[string]domain.PriceSeries{
			"ACME": dailySeries(t, "ACME", "2024-01-02", "100", "101"),
		},
		errs: map[string]error{
			"XBI": apperrors.NewPriceFetchError("XBI", "upstream down", nil),
		},
	}
	engine := testEngine(Config{}, prices)

	rows, _, err := engine.Compute(context.Background(), []domain.Event{
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}, testRange(t))

	require.Error(t, err)
	assert.True(t, apperrors.IsPriceFetchError(err))
	assert.Equal(t, "XBI", apperrors.Ticker(err))
	assert.Nil(t, rows, "no rows emitted when the benchmark is unavailable")
}

func TestCompute_SingleTickerFailureDegradesOnlyItsRows(t *testing.T) {
	prices := &fakeGetter{
		series: map[string]domain.PriceSeries{
			"ACME": dailySeries(t, "ACME", "2024-01-02", "100", "101", "102", "103", "104", "105"),
			"XBI":  flatSeries(t, "XBI", "2024-01-02", "50", 20),
		},
		errs: map[string]error{
			"GONE": apperrors.NewPriceFetchError("GONE", "delisted", nil),
		},
	}
	engine := testEngine(Config{Windows: []int{1}}, prices)

	events := []domain.Event{
		{Ticker: "GONE", EventDate: day(t, "2024-01-02")},
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}
	rows, summary, err := engine.Compute(context.Background(), events, testRange(t))
	require.NoError(t, err, "one bad ticker must not abort the run")
	require.Len(t, rows, 2)

	assert.Nil(t, rows[0].Windows[1].Raw)
	require.NotNil(t, rows[1].Windows[1].Raw)
	assert.Equal(t, 1, summary.TickersFailed)
	assert.Equal(t, []string{"GONE"}, summary.FailedTickers)
}

func TestCompute_MissingBenchmarkCoverageLeavesRawIntact(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		"ACME": dailySeries(t, "ACME", "2024-01-02", "100", "101", "102"),
		// Benchmark series ends before the window does.
		"XBI": dailySeries(t, "XBI", "2024-01-02", "50"),
	}}
	engine := testEngine(Config{Windows: []int{1}}, prices)

	rows, summary, err := engine.Compute(context.Background(), []domain.Event{
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}, testRange(t))
	require.NoError(t, err)

	w1 := rows[0].Windows[1]
	require.NotNil(t, w1.Raw)
	assert.Nil(t, w1.Benchmark)
	assert.Nil(t, w1.Abnormal, "abnormal return requires the benchmark")
	assert.Equal(t, 1, summary.WindowsMissing)
}

func TestCompute_ZeroAnchorPriceIsMissingNotPanic(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		"ACME": dailySeries(t, "ACME", "2024-01-02", "0", "101"),
		"XBI":  flatSeries(t, "XBI", "2024-01-02", "50", 20),
	}}
	engine := testEngine(Config{Windows: []int{1}}, prices)

	rows, _, err := engine.Compute(context.Background(), []domain.Event{
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}, testRange(t))
	require.NoError(t, err)
	assert.Nil(t, rows[0].Windows[1].Raw)
}

func TestCompute_OutputOrderMatchesInput(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		"ACME": dailySeries(t, "ACME", "2024-01-02", "100", "101"),
		"BIIB": dailySeries(t, "BIIB", "2024-01-02", "200", "202"),
		"XBI":  flatSeries(t, "XBI", "2024-01-02", "50", 20),
	}}
	engine := testEngine(Config{Windows: []int{1}}, prices)

	events := []domain.Event{
		{Ticker: "BIIB", EventDate: day(t, "2024-01-02")},
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
		{Ticker: "BIIB", EventDate: day(t, "2024-01-02")},
	}
	rows, _, err := engine.Compute(context.Background(), events, testRange(t))
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "BIIB", rows[0].Ticker)
	assert.Equal(t, "ACME", rows[1].Ticker)
	assert.Equal(t, "BIIB", rows[2].Ticker)
}

func TestCompute_PassthroughFieldsPreserved(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		"ACME": dailySeries(t, "ACME", "2024-01-02", "100", "101"),
		"XBI":  flatSeries(t, "XBI", "2024-01-02", "50", 20),
	}}
	engine := testEngine(Config{Windows: []int{1}}, prices)

	events := []domain.Event{{
		Ticker:      "ACME",
		EventDate:   day(t, "2024-01-02"),
		QASentScore: 0.8,
		Extra:       map[string]string{"company": "Acme Bio", "quarter": "Q4"},
	}}
	rows, _, err := engine.Compute(context.Background(), events, testRange(t))
	require.NoError(t, err)

	assert.Equal(t, 0.8, rows[0].QASentScore)
	assert.Equal(t, "Acme Bio", rows[0].Extra["company"])
	assert.Equal(t, "Q4", rows[0].Extra["quarter"])
}

func TestCompute_RefreshFlagPropagates(t *testing.T) {
	prices := &fakeGetter{series: map[string]domain.PriceSeries{
		"ACME": dailySeries(t, "ACME", "2024-01-02", "100", "101"),
		"XBI":  flatSeries(t, "XBI", "2024-01-02", "50", 20),
	}}
	engine := testEngine(Config{Windows: []int{1}, Refresh: true}, prices)

	_, _, err := engine.Compute(context.Background(), []domain.Event{
		{Ticker: "ACME", EventDate: day(t, "2024-01-02")},
	}, testRange(t))
	require.NoError(t, err)

	require.NotEmpty(t, prices.refreshes)
	for _, r := range prices.refreshes {
		assert.True(t, r, "refresh must apply to every ticker touched in the run")
	}
}

func TestCompute_ParallelPrefetch(t *testing.T) {
	series := map[string]domain.PriceSeries{
		"XBI": flatSeries(t, "XBI", "2024-01-02", "50", 20),
	}
	var events []domain.Event
	for _, ticker := range []string{"AAA", "BBB", "CCC", "DDD", "EEE"} {
		series[ticker] = dailySeries(t, ticker, "2024-01-02", "100", "101")
		events = append(events, domain.Event{Ticker: ticker, EventDate: day(t, "2024-01-02")})
	}
	prices := &fakeGetter{series: series}
	engine := testEngine(Config{Windows: []int{1}, PrefetchWorkers: 3}, prices)

	rows, summary, err := engine.Compute(context.Background(), events, testRange(t))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Zero(t, summary.TickersFailed)
	for i, row := range rows {
		assert.Equal(t, events[i].Ticker, row.Ticker, "order preserved despite parallel prefetch")
		require.NotNil(t, row.Windows[1].Raw)
	}
}
