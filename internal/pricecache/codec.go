package pricecache

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"eventstudy/pkg/contracts/domain"
)

// Cache file layout: a small comment header carrying the provenance of
// the series, then a date-sorted CSV body.
//
//	# ticker: ACME
//	# fetched_at: 2024-05-01T12:00:00Z
//	# range: 2024-01-01..2024-03-01
//	Date,AdjustedClose
//	2024-01-02,100.5
//
// Prices are decimals rendered without trailing zeros, so a written
// series reads back bit-equal.

const (
	headerTicker    = "ticker"
	headerFetchedAt = "fetched_at"
	headerRange     = "range"
)

// WriteSeries serializes a series to w in the cache file format.
func WriteSeries(w io.Writer, series domain.PriceSeries) error {
	if err := series.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s: %s\n", headerTicker, series.Ticker)
	fmt.Fprintf(bw, "# %s: %s\n", headerFetchedAt, series.FetchedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(bw, "# %s: %s..%s\n", headerRange,
		series.FetchedRange.Start.Format(domain.DateOnly),
		series.FetchedRange.End.Format(domain.DateOnly))

	cw := csv.NewWriter(bw)
	if err := cw.Write([]string{"Date", "AdjustedClose"}); err != nil {
		return err
	}
	for _, p := range series.Points {
		if err := cw.Write([]string{p.Date.Format(domain.DateOnly), p.AdjustedClose.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadSeries parses a cache file back into a series, validating the
// invariants so a tampered or truncated file never masquerades as a
// complete one.
func ReadSeries(r io.Reader) (domain.PriceSeries, error) {
	var series domain.PriceSeries

	br := bufio.NewReader(r)
	var body strings.Builder
	for {
		line, err := br.ReadString('\n')
		if strings.HasPrefix(line, "#") {
			if herr := parseHeaderLine(line, &series); herr != nil {
				return domain.PriceSeries{}, herr
			}
		} else {
			body.WriteString(line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.PriceSeries{}, err
		}
	}

	if series.Ticker == "" {
		return domain.PriceSeries{}, fmt.Errorf("cache file missing ticker header")
	}

	cr := csv.NewReader(strings.NewReader(body.String()))
	records, err := cr.ReadAll()
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("cache file body malformed: %w", err)
	}
	if len(records) == 0 || records[0][0] != "Date" {
		return domain.PriceSeries{}, fmt.Errorf("cache file missing column header")
	}

	for _, rec := range records[1:] {
		if len(rec) != 2 {
			return domain.PriceSeries{}, fmt.Errorf("cache file row has %d columns, want 2", len(rec))
		}
		date, err := time.Parse(domain.DateOnly, rec[0])
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("cache file has bad date %q: %w", rec[0], err)
		}
		price, err := decimal.NewFromString(rec[1])
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("cache file has bad price %q: %w", rec[1], err)
		}
		series.Points = append(series.Points, domain.PricePoint{
			Date:          domain.Midnight(date),
			AdjustedClose: price,
		})
	}

	if err := series.Validate(); err != nil {
		return domain.PriceSeries{}, err
	}
	return series, nil
}

func parseHeaderLine(line string, series *domain.PriceSeries) error {
	line = strings.TrimSpace(strings.TrimPrefix(line, "#"))
	key, value, found := strings.Cut(line, ":")
	if !found {
		return fmt.Errorf("cache file has malformed header line %q", line)
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	case headerTicker:
		series.Ticker = value
	case headerFetchedAt:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return fmt.Errorf("cache file has bad fetched_at %q: %w", value, err)
		}
		series.FetchedAt = t
	case headerRange:
		start, end, ok := strings.Cut(value, "..")
		if !ok {
			return fmt.Errorf("cache file has bad range %q", value)
		}
		s, err := time.Parse(domain.DateOnly, start)
		if err != nil {
			return fmt.Errorf("cache file has bad range start %q: %w", start, err)
		}
		e, err := time.Parse(domain.DateOnly, end)
		if err != nil {
			return fmt.Errorf("cache file has bad range end %q: %w", end, err)
		}
		series.FetchedRange = domain.NewDateRange(s, e)
	}
	return nil
}
