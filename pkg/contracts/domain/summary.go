package domain

import (
	"time"
)

// RunSummary aggregates the per-category counts for one pipeline run.
// It is logged at run end and served at /api/summary so a completed run
// always discloses what was skipped or degraded.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	DatasetRevision string    `json:"dataset_revision"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`

	EventsLoaded      int `json:"events_loaded"`
	RowsDropped       int `json:"rows_dropped"`
	AnchorsUnresolved int `json:"anchors_unresolved"`
	WindowsMissing    int `json:"windows_missing"`
	TickersFailed     int `json:"tickers_failed"`

	CacheHits          int `json:"cache_hits"`
	CacheMisses        int `json:"cache_misses"`
	CachePartialMisses int `json:"cache_partial_misses"`
	CacheRefreshes     int `json:"cache_refreshes"`

	// FailedTickers names the tickers whose price fetch failed, so the
	// fatal-benchmark check and the run log can point at the offender.
	FailedTickers []string `json:"failed_tickers,omitempty"`
}
