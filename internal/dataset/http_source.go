package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "eventstudy/internal/errors"
)

// HTTPSource fetches dataset rows from a datasets-server style rows API.
// Requests carry the pinned revision so the server resolves the exact
// content hash rather than a branch head.
type HTTPSource struct {
	baseURL  string
	split    string
	pageSize int
	client   *http.Client
}

// NewHTTPSource creates a dataset source against the given base URL.
func NewHTTPSource(baseURL, split string, pageSize int, timeout time.Duration) *HTTPSource {
	if pageSize <= 0 {
		pageSize = 100
	}
	if split == "" {
		split = "train"
	}
	return &HTTPSource{
		baseURL:  baseURL,
		split:    split,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
	}
}

// rowsResponse mirrors the rows endpoint payload.
type rowsResponse struct {
	Rows []struct {
		Row map[string]json.RawMessage `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

// FetchDataset pages through the dataset at the pinned revision.
func (s *HTTPSource) FetchDataset(ctx context.Context, name, revision string) ([]RawEventRow, error) {
	var rows []RawEventRow

	for offset := 0; ; offset += s.pageSize {
		page, total, err := s.fetchPage(ctx, name, revision, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if offset+s.pageSize >= total || len(page) == 0 {
			break
		}
	}

	return rows, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, name, revision string, offset int) ([]RawEventRow, int, error) {
	q := url.Values{}
	q.Set("dataset", name)
	q.Set("config", "default")
	q.Set("split", s.split)
	q.Set("revision", revision)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(s.pageSize))

	reqURL := fmt.Sprintf("%s/rows?%s", s.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, apperrors.NewDataSourceError("failed to build dataset request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, apperrors.NewDataSourceError("dataset fetch failed", err).
			WithContext("revision", revision)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, apperrors.NewDataSourceError(
			fmt.Sprintf("dataset fetch returned status %d", resp.StatusCode), nil).
			WithContext("revision", revision).
			WithContext("body", string(body))
	}

	var payload rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, 0, apperrors.NewDataSourceError("failed to decode dataset response", err).
			WithContext("revision", revision)
	}

	rows := make([]RawEventRow, 0, len(payload.Rows))
	for _, r := range payload.Rows {
		rows = append(rows, decodeRow(r.Row))
	}
	return rows, payload.NumRowsTotal, nil
}

// decodeRow maps the loosely typed row onto RawEventRow, keeping unknown
// scalar fields as passthrough strings.
func decodeRow(row map[string]json.RawMessage) RawEventRow {
	var raw RawEventRow
	raw.Extra = make(map[string]string)

	for key, val := range row {
		switch key {
		case "ticker":
			json.Unmarshal(val, &raw.Ticker)
		case "earnings_date", "event_date":
			json.Unmarshal(val, &raw.EventDate)
		case "qa_sent_score":
			var f float64
			if err := json.Unmarshal(val, &f); err == nil {
				raw.QASentScore = &f
			}
		case "sector":
			json.Unmarshal(val, &raw.Sector)
		default:
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				raw.Extra[key] = s
				continue
			}
			var n float64
			if err := json.Unmarshal(val, &n); err == nil {
				raw.Extra[key] = strconv.FormatFloat(n, 'f', -1, 64)
			}
		}
	}
	return raw
}
