package domain

import (
	"fmt"
)

// WindowReturns holds the computed returns for one event over one window
// length. Nil pointers mean "could not compute" and are serialized as
// null/empty, never as zero.
type WindowReturns struct {
	Raw       *float64 `json:"raw"`
	Benchmark *float64 `json:"benchmark"`
	Abnormal  *float64 `json:"abnormal"`
}

// EnrichedRow is one source event plus its computed return columns.
// The set of windows is fixed per run, so every row carries the same
// columns even when all of them are missing.
type EnrichedRow struct {
	Event
	// Windows maps window length (trading days) to computed returns.
	Windows map[int]WindowReturns `json:"windows"`
	// AnchorDate is the trading day used as day zero, nil when the event
	// could not be anchored to any observation.
	AnchorDate *string `json:"anchor_date,omitempty"`
}

// ReturnColumns lists the column names for a set of window lengths in
// the order they appear in exports: raw_ret_w, benchmark_ret_w, abn_ret_w
// per window. Windows must already be sorted by the caller.
func ReturnColumns(windows []int) []string {
	cols := make([]string, 0, len(windows)*3)
	for _, w := range windows {
		cols = append(cols,
			fmt.Sprintf("raw_ret_%d", w),
			fmt.Sprintf("benchmark_ret_%d", w),
			fmt.Sprintf("abn_ret_%d", w))
	}
	return cols
}

// Float64Ptr is a convenience helper for building rows in tests and
// fixtures.
func Float64Ptr(v float64) *float64 { return &v }
