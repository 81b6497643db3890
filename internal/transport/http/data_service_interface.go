package http

import (
	"context"
	"net/http"

	"eventstudy/internal/services"
	"eventstudy/pkg/contracts/domain"
)

// DataServiceInterface is the read surface the dashboard handlers need.
// The concrete implementation is services.DataService; tests substitute
// a mock.
type DataServiceInterface interface {
	GetRunSummary(ctx context.Context) (*domain.RunSummary, error)
	GetEvents(ctx context.Context, ticker string) ([]domain.EnrichedRow, []int, error)
	GetTickers(ctx context.Context) ([]services.TickerInfo, error)
	GetTickerSummary(ctx context.Context, ticker string) (*services.TickerSummary, error)
	GetEventDetail(ctx context.Context, ticker, date string) (*domain.EnrichedRow, error)
	GetTickerHistory(ctx context.Context, ticker string) (*domain.PriceSeries, error)
	DownloadFile(ctx context.Context, w http.ResponseWriter, r *http.Request, filename string) error
}
