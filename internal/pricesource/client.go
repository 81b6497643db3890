// Package pricesource fetches daily adjusted close series from the
// external price API. Every call is treated as potentially slow or
// failing: requests are rate limited and failures surface as
// PriceFetchErrors for the caller to classify.
package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/infrastructure"
	"eventstudy/pkg/contracts/domain"
)

// Client is the capability interface over the price collaborator. Tests
// substitute deterministic fakes for it.
type Client interface {
	FetchPrices(ctx context.Context, ticker string, rng domain.DateRange) ([]domain.PricePoint, error)
}

// HTTPClient fetches daily bars from a chart API endpoint.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	metrics *infrastructure.PipelineMetrics
}

// NewHTTPClient creates a rate-limited price source client.
func NewHTTPClient(baseURL string, timeout time.Duration, perSecond float64, burst int, metrics *infrastructure.PipelineMetrics) *HTTPClient {
	if perSecond <= 0 {
		perSecond = 4
	}
	if burst <= 0 {
		burst = 1
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		metrics: metrics,
	}
}

// chartResponse mirrors the chart API payload.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchPrices downloads the daily series for one ticker over rng.
func (c *HTTPClient) FetchPrices(ctx context.Context, ticker string, rng domain.DateRange) ([]domain.PricePoint, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewPriceFetchError(ticker, "rate limiter wait interrupted", err)
	}

	start := time.Now()
	points, err := c.fetch(ctx, ticker, rng)
	c.metrics.RecordFetch(ctx, ticker, time.Since(start), err)
	return points, err
}

func (c *HTTPClient) fetch(ctx context.Context, ticker string, rng domain.DateRange) ([]domain.PricePoint, error) {
	// period2 is exclusive upstream, so push it past the end date.
	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=div%%2Csplit",
		c.baseURL, ticker, rng.Start.Unix(), rng.End.AddDate(0, 0, 1).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.NewPriceFetchError(ticker, "failed to build price request", err)
	}
	req.Header.Set("User-Agent", "eventstudy/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewPriceFetchError(ticker, "price fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.NewPriceFetchError(ticker,
			fmt.Sprintf("price source returned status %d", resp.StatusCode), nil).
			WithContext("body", string(body))
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewPriceFetchError(ticker, "failed to decode price response", err)
	}
	if payload.Chart.Error != nil {
		return nil, apperrors.NewPriceFetchError(ticker,
			fmt.Sprintf("price source error: %s", payload.Chart.Error.Description), nil)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, apperrors.NewPriceFetchError(ticker, "price source returned no result", nil)
	}

	result := payload.Chart.Result[0]
	closes := c.pickCloses(result.Indicators.AdjClose, result.Indicators.Quote)
	if closes == nil {
		return nil, apperrors.NewPriceFetchError(ticker, "price source returned no close series", nil)
	}

	points := make([]domain.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue // non-trading gap or null bar
		}
		date := domain.Midnight(time.Unix(ts, 0).UTC())
		if !rng.Contains(date) {
			continue
		}
		points = append(points, domain.PricePoint{
			Date:          date,
			AdjustedClose: decimal.NewFromFloat(*closes[i]).Round(6),
		})
	}

	series := domain.PriceSeries{Ticker: ticker, Points: points}
	if err := series.Validate(); err != nil {
		return nil, apperrors.NewPriceFetchError(ticker, "price source returned malformed series", err)
	}

	return points, nil
}

// pickCloses prefers adjusted closes, falling back to raw closes when
// the adjusted series is absent.
func (c *HTTPClient) pickCloses(adj []struct {
	AdjClose []*float64 `json:"adjclose"`
}, quote []struct {
	Close []*float64 `json:"close"`
}) []*float64 {
	if len(adj) > 0 && len(adj[0].AdjClose) > 0 {
		return adj[0].AdjClose
	}
	if len(quote) > 0 && len(quote[0].Close) > 0 {
		return quote[0].Close
	}
	return nil
}
