package exporter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"eventstudy/pkg/contracts/domain"
)

func sampleRows(t *testing.T) []domain.EnrichedRow {
	t.Helper()
	eventDate, err := time.Parse(domain.DateOnly, "2024-01-02")
	require.NoError(t, err)
	anchor := "2024-01-02"

	return []domain.EnrichedRow{
		{
			Event: domain.Event{
				Ticker:      "ACME",
				EventDate:   eventDate.UTC(),
				QASentScore: 0.8,
				Extra:       map[string]string{"sector": "Health Care"},
			},
			AnchorDate: &anchor,
			Windows: map[int]domain.WindowReturns{
				1: {
					Raw:       domain.Float64Ptr(0.01),
					Benchmark: domain.Float64Ptr(0),
					Abnormal:  domain.Float64Ptr(0.01),
				},
				5: {
					Raw:       domain.Float64Ptr(0.04),
					Benchmark: domain.Float64Ptr(0),
					Abnormal:  domain.Float64Ptr(0.04),
				},
			},
		},
		{
			Event: domain.Event{
				Ticker:      "GONE",
				EventDate:   eventDate.UTC(),
				QASentScore: -0.2,
			},
			// No anchor, every window missing.
			Windows: map[int]domain.WindowReturns{1: {}, 5: {}},
		},
	}
}

func TestWriteEnrichedCSV_HeaderAndOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnrichedCSV(&buf, sampleRows(t), []int{1, 5}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"ticker,event_date,qa_sent_score,anchor_date,sector,"+
			"raw_ret_1,benchmark_ret_1,abn_ret_1,raw_ret_5,benchmark_ret_5,abn_ret_5",
		lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "ACME,"), "output order matches input order")
	assert.True(t, strings.HasPrefix(lines[2], "GONE,"))
}

func TestWriteEnrichedCSV_MissingIsEmptyCellNotZero(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnrichedCSV(&buf, sampleRows(t), []int{1, 5}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	// The unanchored row carries empty anchor and return cells.
	assert.Equal(t, "GONE,2024-01-02,-0.2,,,,,,,,", lines[2])
}

func TestEnrichedCSV_RoundTrip(t *testing.T) {
	rows := sampleRows(t)

	var buf bytes.Buffer
	require.NoError(t, WriteEnrichedCSV(&buf, rows, []int{1, 5}))

	got, windows, err := ReadEnrichedCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5}, windows)
	require.Len(t, got, 2)

	assert.Equal(t, "ACME", got[0].Ticker)
	assert.Equal(t, 0.8, got[0].QASentScore)
	require.NotNil(t, got[0].AnchorDate)
	assert.Equal(t, "2024-01-02", *got[0].AnchorDate)
	assert.Equal(t, "Health Care", got[0].Extra["sector"])
	require.NotNil(t, got[0].Windows[5].Raw)
	assert.Equal(t, 0.04, *got[0].Windows[5].Raw)

	assert.Nil(t, got[1].AnchorDate)
	assert.Nil(t, got[1].Windows[1].Raw)
	assert.Nil(t, got[1].Windows[5].Abnormal)
}

func TestReadEnrichedCSV_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"missing columns", "ticker,event_date\nACME,2024-01-02\n"},
		{"bad return value", "ticker,event_date,qa_sent_score,anchor_date,raw_ret_1,benchmark_ret_1,abn_ret_1\nACME,2024-01-02,0.5,,abc,,\n"},
		{"bad event date", "ticker,event_date,qa_sent_score,anchor_date,raw_ret_1,benchmark_ret_1,abn_ret_1\nACME,02/01/2024,0.5,,,,\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadEnrichedCSV(strings.NewReader(tt.content))
			require.Error(t, err)
		})
	}
}

func TestCSVWriter_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir)

	require.NoError(t, w.WriteSimpleCSV("out.csv",
		[]string{"a", "b"}, [][]string{{"1", "2"}}))
	require.NoError(t, w.WriteSimpleCSV("out.csv",
		[]string{"a", "b"}, [][]string{{"3", "4"}}))

	data, err := os.ReadFile(filepath.Join(dir, "out.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n3,4\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteEnrichedWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.xlsx")
	require.NoError(t, WriteEnrichedWorkbook(path, sampleRows(t), []int{1, 5}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	ticker, err := f.GetCellValue(enrichedSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "ACME", ticker)

	raw5, err := f.GetCellValue(enrichedSheet, "I2")
	require.NoError(t, err)
	assert.Equal(t, "0.04", raw5)

	// Missing returns on the unanchored row stay empty.
	raw1Missing, err := f.GetCellValue(enrichedSheet, "F3")
	require.NoError(t, err)
	assert.Empty(t, raw1Missing)
}
