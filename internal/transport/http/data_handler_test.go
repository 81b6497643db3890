package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "eventstudy/internal/errors"
	"eventstudy/internal/services"
	"eventstudy/pkg/contracts/domain"
)

type mockDataService struct {
	summary *domain.RunSummary
	rows    []domain.EnrichedRow
	windows []int
	err     error
}

func (m *mockDataService) GetRunSummary(ctx context.Context) (*domain.RunSummary, error) {
	return m.summary, m.err
}

func (m *mockDataService) GetEvents(ctx context.Context, ticker string) ([]domain.EnrichedRow, []int, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return m.rows, m.windows, nil
}

func (m *mockDataService) GetTickers(ctx context.Context) ([]services.TickerInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []services.TickerInfo{{Ticker: "ACME", EventCount: 1, Cached: true}}, nil
}

func (m *mockDataService) GetTickerSummary(ctx context.Context, ticker string) (*services.TickerSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.TickerSummary{Ticker: ticker, Events: 1}, nil
}

func (m *mockDataService) GetEventDetail(ctx context.Context, ticker, date string) (*domain.EnrichedRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.rows) == 0 {
		return nil, services.ErrEventNotFound
	}
	return &m.rows[0], nil
}

func (m *mockDataService) GetTickerHistory(ctx context.Context, ticker string) (*domain.PriceSeries, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.PriceSeries{Ticker: ticker}, nil
}

func (m *mockDataService) DownloadFile(ctx context.Context, w http.ResponseWriter, r *http.Request, filename string) error {
	if m.err != nil {
		return m.err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func newTestHandler(svc *mockDataService) *DataHandler {
	logger := slog.Default()
	return NewDataHandler(svc, logger, apierrors.NewErrorHandler(logger))
}

func doRequest(t *testing.T, h *DataHandler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", path, nil)
	h.Routes().ServeHTTP(w, r)
	return w
}

func TestGetSummary(t *testing.T) {
	svc := &mockDataService{summary: &domain.RunSummary{
		RunID:           "run-1",
		DatasetRevision: "abc1234",
		StartedAt:       time.Now().UTC(),
		EventsLoaded:    10,
	}}
	w := doRequest(t, newTestHandler(svc), "/summary")

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.RunSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 10, got.EventsLoaded)
}

func TestGetSummary_NoRunYet(t *testing.T) {
	svc := &mockDataService{err: services.ErrNoRunSummary}
	w := doRequest(t, newTestHandler(svc), "/summary")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "RUN_NOT_FOUND")
}

func TestGetEvents(t *testing.T) {
	anchor := "2024-01-02"
	svc := &mockDataService{
		rows: []domain.EnrichedRow{{
			Event:      domain.Event{Ticker: "ACME"},
			AnchorDate: &anchor,
			Windows: map[int]domain.WindowReturns{
				1: {Raw: domain.Float64Ptr(0.01)},
			},
		}},
		windows: []int{1},
	}
	w := doRequest(t, newTestHandler(svc), "/events?ticker=ACME")

	require.Equal(t, http.StatusOK, w.Code)
	var got eventsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, []int{1}, got.Windows)
	require.NotNil(t, got.Events[0].Windows[1].Raw)
	assert.Nil(t, got.Events[0].Windows[1].Abnormal, "missing stays null in JSON")
}

func TestGetEvents_UnknownTicker(t *testing.T) {
	svc := &mockDataService{err: services.ErrTickerNotFound}
	w := doRequest(t, newTestHandler(svc), "/events?ticker=NOPE")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "TICKER_NOT_FOUND")
}

func TestGetTickers(t *testing.T) {
	w := doRequest(t, newTestHandler(&mockDataService{}), "/tickers")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ACME")
}

func TestTickerCtx_RejectsOverlongSymbol(t *testing.T) {
	w := doRequest(t, newTestHandler(&mockDataService{}), "/ticker/WAYTOOLONGSYMBOL/summary")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
}

func TestGetTickerHistory(t *testing.T) {
	w := doRequest(t, newTestHandler(&mockDataService{}), "/ticker/ACME/history")
	assert.Equal(t, http.StatusOK, w.Code)
}
