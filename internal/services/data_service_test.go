package services

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventstudy/internal/exporter"
	"eventstudy/internal/pricecache"
	"eventstudy/pkg/contracts/domain"
)

func seedOutputs(t *testing.T) (*DataService, string) {
	t.Helper()
	cfg, paths := testConfig(t)
	require.NoError(t, paths.EnsureDirectories())

	anchor := "2024-01-02"
	rows := []domain.EnrichedRow{
		{
			Event:      domain.Event{Ticker: "ACME", EventDate: eventDay(t, "2024-01-02"), QASentScore: 0.8},
			AnchorDate: &anchor,
			Windows: map[int]domain.WindowReturns{
				1: {Raw: domain.Float64Ptr(0.01), Benchmark: domain.Float64Ptr(0), Abnormal: domain.Float64Ptr(0.01)},
				5: {Raw: domain.Float64Ptr(0.04), Benchmark: domain.Float64Ptr(0), Abnormal: domain.Float64Ptr(0.04)},
			},
		},
		{
			Event:   domain.Event{Ticker: "BIIB", EventDate: eventDay(t, "2024-01-03"), QASentScore: -0.1},
			Windows: map[int]domain.WindowReturns{1: {}, 5: {}},
		},
	}

	f, err := os.Create(paths.GetEnrichedCSVPath())
	require.NoError(t, err)
	require.NoError(t, exporter.WriteEnrichedCSV(f, rows, []int{1, 5}))
	require.NoError(t, f.Close())

	summary := domain.RunSummary{RunID: "run-1", DatasetRevision: "abc1234", EventsLoaded: 2}
	data, err := json.Marshal(summary)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(paths.GetRunSummaryPath(), data, 0644))

	series := domain.PriceSeries{
		Ticker: "ACME",
		Points: []domain.PricePoint{
			{Date: eventDay(t, "2024-01-02"), AdjustedClose: decimal.RequireFromString("100")},
		},
		FetchedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		FetchedRange: domain.NewDateRange(eventDay(t, "2024-01-01"), eventDay(t, "2024-01-10")),
	}
	sf, err := os.Create(paths.GetPriceCachePath("ACME"))
	require.NoError(t, err)
	require.NoError(t, pricecache.WriteSeries(sf, series))
	require.NoError(t, sf.Close())

	return NewDataService(cfg, paths), paths.ProcessedDir
}

func TestGetRunSummary(t *testing.T) {
	ds, _ := seedOutputs(t)

	summary, err := ds.GetRunSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "abc1234", summary.DatasetRevision)
}

func TestGetRunSummary_NoRunYet(t *testing.T) {
	cfg, paths := testConfig(t)
	ds := NewDataService(cfg, paths)

	_, err := ds.GetRunSummary(context.Background())
	assert.ErrorIs(t, err, ErrNoRunSummary)
}

func TestGetEvents_FilterByTicker(t *testing.T) {
	ds, _ := seedOutputs(t)

	all, windows, err := ds.GetEvents(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []int{1, 5}, windows)

	acme, _, err := ds.GetEvents(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, acme, 1)
	assert.Equal(t, "ACME", acme[0].Ticker)

	_, _, err = ds.GetEvents(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrTickerNotFound)
}

func TestGetTickers(t *testing.T) {
	ds, _ := seedOutputs(t)

	tickers, err := ds.GetTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 2)

	assert.Equal(t, "ACME", tickers[0].Ticker)
	assert.Equal(t, 1, tickers[0].EventCount)
	assert.True(t, tickers[0].Cached, "ACME has a cache file")
	assert.Equal(t, "BIIB", tickers[1].Ticker)
	assert.False(t, tickers[1].Cached)
}

func TestGetTickerHistory(t *testing.T) {
	ds, _ := seedOutputs(t)

	series, err := ds.GetTickerHistory(context.Background(), "ACME")
	require.NoError(t, err)
	require.Len(t, series.Points, 1)
	assert.Equal(t, "100", series.Points[0].AdjustedClose.String())

	_, err = ds.GetTickerHistory(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrTickerNotFound)
}

func TestGetTickerSummary(t *testing.T) {
	ds, _ := seedOutputs(t)

	summary, err := ds.GetTickerSummary(context.Background(), "ACME")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Events)
	require.Len(t, summary.Windows, 2)

	w5 := summary.Windows[1]
	assert.Equal(t, 5, w5.Window)
	require.NotNil(t, w5.MeanAbnormal)
	assert.InDelta(t, 0.04, *w5.MeanAbnormal, 1e-12)
	require.NotNil(t, w5.HitRate)
	assert.Equal(t, 1.0, *w5.HitRate)

	// A ticker with only missing returns gets nil aggregates, not zeros.
	missing, err := ds.GetTickerSummary(context.Background(), "BIIB")
	require.NoError(t, err)
	require.Len(t, missing.Windows, 2)
	assert.Nil(t, missing.Windows[0].MeanAbnormal)
	assert.Nil(t, missing.Windows[0].HitRate)
}

func TestGetEventDetail(t *testing.T) {
	ds, _ := seedOutputs(t)

	row, err := ds.GetEventDetail(context.Background(), "ACME", "2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, "ACME", row.Ticker)
	require.NotNil(t, row.Windows[5].Abnormal)

	_, err = ds.GetEventDetail(context.Background(), "ACME", "2024-06-01")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestDownloadFile(t *testing.T) {
	ds, processedDir := seedOutputs(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/download/events_with_features.csv", nil)
	err := ds.DownloadFile(context.Background(), w, r, "events_with_features.csv")
	require.NoError(t, err)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "events_with_features.csv")

	// Traversal out of the processed dir is rejected even when the
	// target exists.
	outside := filepath.Join(filepath.Dir(processedDir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("nope"), 0644))
	err = ds.DownloadFile(context.Background(), httptest.NewRecorder(), r, "../secret.txt")
	assert.ErrorIs(t, err, ErrInvalidInput)

	// A sibling directory sharing the processed dir's name as a prefix
	// is still outside it.
	siblingDir := processedDir + "-old"
	require.NoError(t, os.MkdirAll(siblingDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(siblingDir, "stale.csv"), []byte("old"), 0644))
	sibling := "../" + filepath.Base(siblingDir) + "/stale.csv"
	err = ds.DownloadFile(context.Background(), httptest.NewRecorder(), r, sibling)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = ds.DownloadFile(context.Background(), httptest.NewRecorder(), r, "missing.csv")
	assert.ErrorIs(t, err, ErrFileNotFound)
}
