package domain

import (
	"time"
)

// DateOnly is the canonical date layout used across cache files, exports
// and the dashboard API.
const DateOnly = "2006-01-02"

// Event represents a single dated sentiment observation for one ticker.
// Events are loaded once per run from a pinned dataset revision and are
// never mutated afterwards. Multiple events per ticker/day are legal.
type Event struct {
	Ticker      string    `json:"ticker" validate:"required,min=1,max=10"`
	EventDate   time.Time `json:"event_date" validate:"required"`
	QASentScore float64   `json:"qa_sent_score"`
	// Extra carries passthrough fields from the source dataset (company
	// name, sector, quarter, ...) that this pipeline does not interpret.
	Extra map[string]string `json:"extra,omitempty"`
}

// EventFilter selects a subset of events for dashboard queries.
type EventFilter struct {
	Ticker   string     `json:"ticker,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

// Matches reports whether the event passes the filter.
func (f EventFilter) Matches(e Event) bool {
	if f.Ticker != "" && e.Ticker != f.Ticker {
		return false
	}
	if f.DateFrom != nil && e.EventDate.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && e.EventDate.After(*f.DateTo) {
		return false
	}
	return true
}
