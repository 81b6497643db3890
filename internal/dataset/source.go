// Package dataset loads the event dataset pinned to an exact content
// revision. The revision actually used is logged before the fetch so a
// crashed run still reveals which data it was about to read.
package dataset

import (
	"context"
)

// RawEventRow is one dataset row before validation. Field names follow
// the upstream dataset schema.
type RawEventRow struct {
	Ticker      string   `json:"ticker" validate:"required,min=1,max=10,alphanum"`
	EventDate   string   `json:"earnings_date" validate:"required"`
	QASentScore *float64 `json:"qa_sent_score" validate:"required"`
	Sector      string   `json:"sector"`
	// Extra carries the remaining scalar fields untouched.
	Extra map[string]string `json:"-"`
}

// Source is the capability interface over the dataset collaborator.
// Implementations must treat the revision as immutable: the same
// revision always yields the same rows.
type Source interface {
	FetchDataset(ctx context.Context, name, revision string) ([]RawEventRow, error)
}
