package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "eventstudy/internal/errors"
	"eventstudy/internal/services"
	"eventstudy/pkg/contracts/domain"
)

// DataHandler serves the dashboard reads: run summary, enriched events,
// tickers and cached price history.
type DataHandler struct {
	service      DataServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDataHandler creates a new data handler.
func NewDataHandler(service DataServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DataHandler {
	return &DataHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "data_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the data routes.
func (h *DataHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/summary", h.GetSummary)
	r.Get("/events", h.GetEvents)
	r.Get("/tickers", h.GetTickers)

	r.Route("/ticker/{ticker}", func(r chi.Router) {
		r.Use(h.TickerCtx)
		r.Get("/events", h.GetTickerEvents)
		r.Get("/events/{date}", h.GetEventDetail)
		r.Get("/summary", h.GetTickerSummary)
		r.Get("/history", h.GetTickerHistory)
	})

	r.Get("/download/{filename}", h.DownloadFile)

	return r
}

// TickerCtx middleware validates the ticker parameter.
func (h *DataHandler) TickerCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ticker := chi.URLParam(r, "ticker")
		if ticker == "" {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("ticker", "Ticker symbol is required"))
			return
		}
		if len(ticker) > 10 {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("ticker", "Invalid ticker symbol format"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSummary handles GET /api/data/summary
func (h *DataHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetRunSummary(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "failed to get run summary")
		return
	}
	render.JSON(w, r, summary)
}

// GetEvents handles GET /api/data/events with an optional ticker filter.
func (h *DataHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")

	rows, windows, err := h.service.GetEvents(r.Context(), ticker)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to get events")
		return
	}
	render.JSON(w, r, eventsResponse{Events: rows, Windows: windows, Count: len(rows)})
}

// GetTickers handles GET /api/data/tickers
func (h *DataHandler) GetTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.service.GetTickers(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err, "failed to get tickers")
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"tickers": tickers,
		"count":   len(tickers),
	})
}

// GetTickerEvents handles GET /api/data/ticker/{ticker}/events
func (h *DataHandler) GetTickerEvents(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	rows, windows, err := h.service.GetEvents(r.Context(), ticker)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to get ticker events")
		return
	}
	render.JSON(w, r, eventsResponse{Events: rows, Windows: windows, Count: len(rows)})
}

// GetEventDetail handles GET /api/data/ticker/{ticker}/events/{date}
func (h *DataHandler) GetEventDetail(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	date := chi.URLParam(r, "date")

	row, err := h.service.GetEventDetail(r.Context(), ticker, date)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to get event detail")
		return
	}
	render.JSON(w, r, row)
}

// GetTickerSummary handles GET /api/data/ticker/{ticker}/summary
func (h *DataHandler) GetTickerSummary(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	summary, err := h.service.GetTickerSummary(r.Context(), ticker)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to get ticker summary")
		return
	}
	render.JSON(w, r, summary)
}

// GetTickerHistory handles GET /api/data/ticker/{ticker}/history
func (h *DataHandler) GetTickerHistory(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")

	series, err := h.service.GetTickerHistory(r.Context(), ticker)
	if err != nil {
		h.handleServiceError(w, r, err, "failed to get ticker history")
		return
	}
	render.JSON(w, r, series)
}

// DownloadFile handles GET /api/data/download/{filename}
func (h *DataHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("filename", "Filename is required"))
		return
	}

	if err := h.service.DownloadFile(r.Context(), w, r, filename); err != nil {
		h.handleServiceError(w, r, err, "failed to serve download")
	}
}

// handleServiceError maps service errors onto the API error vocabulary.
func (h *DataHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.ErrorContext(r.Context(), msg,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("path", r.URL.Path))

	switch {
	case errors.Is(err, services.ErrTickerNotFound):
		h.errorHandler.HandleError(w, r, apierrors.ErrTickerNotFound)
	case errors.Is(err, services.ErrEventNotFound):
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("event"))
	case errors.Is(err, services.ErrNoRunSummary), errors.Is(err, services.ErrNoEnrichedData):
		h.errorHandler.HandleError(w, r, apierrors.ErrRunNotFound)
	case errors.Is(err, services.ErrFileNotFound):
		h.errorHandler.HandleError(w, r, apierrors.NotFoundError("file"))
	case errors.Is(err, services.ErrInvalidInput):
		h.errorHandler.HandleError(w, r, apierrors.ErrInvalidParameter)
	default:
		h.errorHandler.HandleError(w, r, err)
	}
}

type eventsResponse struct {
	Events  []domain.EnrichedRow `json:"events"`
	Windows []int                `json:"windows"`
	Count   int                  `json:"count"`
}
