package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is a closed calendar-date interval [Start, End].
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range and normalizes both bounds to midnight UTC.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Midnight(start), End: Midnight(end)}
}

// Midnight truncates a timestamp to its calendar date in UTC.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Valid reports whether the range is non-empty.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// Contains reports whether the date falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	d = Midnight(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Covers reports whether this range fully encloses other.
func (r DateRange) Covers(other DateRange) bool {
	return !r.Start.After(other.Start) && !r.End.Before(other.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(DateOnly), r.End.Format(DateOnly))
}

// PricePoint is one daily observation of a ticker's adjusted close.
// Prices are decimals so cache files round-trip without float drift.
type PricePoint struct {
	Date          time.Time       `json:"date"`
	AdjustedClose decimal.Decimal `json:"adjusted_close"`
}

// PriceSeries is the full cached daily price history for one ticker.
type PriceSeries struct {
	Ticker    string       `json:"ticker" validate:"required"`
	Points    []PricePoint `json:"points"`
	FetchedAt time.Time    `json:"fetched_at"`
	// FetchedRange records the query parameters that produced the series,
	// not the span of the points themselves.
	FetchedRange DateRange `json:"fetched_range"`
}

// Validate checks the series invariants: non-empty ticker and strictly
// increasing dates with no duplicates.
func (s PriceSeries) Validate() error {
	if s.Ticker == "" {
		return fmt.Errorf("price series has empty ticker")
	}
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i-1].Date.Before(s.Points[i].Date) {
			return fmt.Errorf("price series for %s not strictly increasing at index %d (%s >= %s)",
				s.Ticker, i,
				s.Points[i-1].Date.Format(DateOnly),
				s.Points[i].Date.Format(DateOnly))
		}
	}
	return nil
}

// Covers reports whether the series was fetched for a span enclosing rng.
// Coverage is judged on the fetched range rather than observed points, so
// leading or trailing non-trading days do not force a refetch.
func (s PriceSeries) Covers(rng DateRange) bool {
	return s.FetchedRange.Covers(rng)
}

// IndexOnOrAfter returns the index of the first observation on or after
// the given date, or -1 when no such observation exists.
func (s PriceSeries) IndexOnOrAfter(d time.Time) int {
	d = Midnight(d)
	for i, p := range s.Points {
		if !p.Date.Before(d) {
			return i
		}
	}
	return -1
}

// PriceAt returns the adjusted close at index i, or false when the index
// is out of bounds.
func (s PriceSeries) PriceAt(i int) (decimal.Decimal, bool) {
	if i < 0 || i >= len(s.Points) {
		return decimal.Decimal{}, false
	}
	return s.Points[i].AdjustedClose, true
}
