// Package exporter writes the enriched event table to the processed
// output directory, as CSV for downstream tooling and as an Excel
// workbook for analysts. A missing return is an empty cell, never a
// zero.
package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"eventstudy/pkg/contracts/domain"
)

const (
	colTicker      = "ticker"
	colEventDate   = "event_date"
	colQASentScore = "qa_sent_score"
	colAnchorDate  = "anchor_date"
)

// EnrichedHeader builds the column header for a run: the fixed event
// columns, the passthrough columns observed across rows in sorted order,
// then the return columns per window.
func EnrichedHeader(rows []domain.EnrichedRow, windows []int) []string {
	header := []string{colTicker, colEventDate, colQASentScore, colAnchorDate}
	header = append(header, extraColumns(rows)...)
	header = append(header, domain.ReturnColumns(windows)...)
	return header
}

// extraColumns collects the union of passthrough keys, sorted so the
// header is deterministic regardless of row order.
func extraColumns(rows []domain.EnrichedRow) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for k := range row.Extra {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// EnrichedRecords renders rows against a header produced by
// EnrichedHeader. Row order is preserved.
func EnrichedRecords(rows []domain.EnrichedRow, windows []int, header []string) [][]string {
	extras := header[4 : len(header)-3*len(windows)]

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		record := make([]string, 0, len(header))
		record = append(record,
			row.Ticker,
			row.EventDate.Format(domain.DateOnly),
			formatFloat(row.QASentScore),
			formatOptString(row.AnchorDate),
		)
		for _, k := range extras {
			record = append(record, row.Extra[k])
		}
		for _, w := range windows {
			wr := row.Windows[w]
			record = append(record,
				formatOptFloat(wr.Raw),
				formatOptFloat(wr.Benchmark),
				formatOptFloat(wr.Abnormal))
		}
		records = append(records, record)
	}
	return records
}

// WriteEnrichedCSV writes the full enriched table to w.
func WriteEnrichedCSV(w io.Writer, rows []domain.EnrichedRow, windows []int) error {
	header := EnrichedHeader(rows, windows)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, record := range EnrichedRecords(rows, windows, header) {
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadEnrichedCSV parses a table previously written by WriteEnrichedCSV.
// The window set is recovered from the raw_ret_* columns.
func ReadEnrichedCSV(r io.Reader) ([]domain.EnrichedRow, []int, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read enriched table: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("enriched table has no header")
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[name] = i
	}
	for _, required := range []string{colTicker, colEventDate, colQASentScore, colAnchorDate} {
		if _, ok := colIdx[required]; !ok {
			return nil, nil, fmt.Errorf("enriched table missing column %q", required)
		}
	}

	windows := windowsFromHeader(header)
	returnCols := make(map[string]bool)
	for _, c := range domain.ReturnColumns(windows) {
		returnCols[c] = true
	}

	rows := make([]domain.EnrichedRow, 0, len(records)-1)
	for n, record := range records[1:] {
		if len(record) != len(header) {
			return nil, nil, fmt.Errorf("row %d has %d columns, header has %d", n+1, len(record), len(header))
		}
		row, err := parseEnrichedRecord(record, header, colIdx, returnCols, windows)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		rows = append(rows, row)
	}
	return rows, windows, nil
}

func parseEnrichedRecord(record, header []string, colIdx map[string]int, returnCols map[string]bool, windows []int) (domain.EnrichedRow, error) {
	var row domain.EnrichedRow

	row.Ticker = record[colIdx[colTicker]]
	eventDate, err := parseDate(record[colIdx[colEventDate]])
	if err != nil {
		return row, fmt.Errorf("bad event_date: %w", err)
	}
	row.EventDate = eventDate

	if v := record[colIdx[colQASentScore]]; v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return row, fmt.Errorf("bad qa_sent_score %q: %w", v, err)
		}
		row.QASentScore = score
	}
	if v := record[colIdx[colAnchorDate]]; v != "" {
		anchor := v
		row.AnchorDate = &anchor
	}

	row.Windows = make(map[int]domain.WindowReturns, len(windows))
	for _, w := range windows {
		wr := domain.WindowReturns{}
		if wr.Raw, err = parseOptFloat(record[colIdx[fmt.Sprintf("raw_ret_%d", w)]]); err != nil {
			return row, err
		}
		if wr.Benchmark, err = parseOptFloat(record[colIdx[fmt.Sprintf("benchmark_ret_%d", w)]]); err != nil {
			return row, err
		}
		if wr.Abnormal, err = parseOptFloat(record[colIdx[fmt.Sprintf("abn_ret_%d", w)]]); err != nil {
			return row, err
		}
		row.Windows[w] = wr
	}

	for i, name := range header {
		switch name {
		case colTicker, colEventDate, colQASentScore, colAnchorDate:
			continue
		}
		if returnCols[name] {
			continue
		}
		if record[i] != "" {
			if row.Extra == nil {
				row.Extra = make(map[string]string)
			}
			row.Extra[name] = record[i]
		}
	}
	return row, nil
}

// windowsFromHeader recovers the sorted window set from raw_ret_* columns.
func windowsFromHeader(header []string) []int {
	var windows []int
	for _, name := range header {
		rest, ok := strings.CutPrefix(name, "raw_ret_")
		if !ok {
			continue
		}
		if w, err := strconv.Atoi(rest); err == nil {
			windows = append(windows, w)
		}
	}
	sort.Ints(windows)
	return windows
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(domain.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	return d.UTC(), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func formatOptString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseOptFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("bad return value %q: %w", s, err)
	}
	return &v, nil
}
