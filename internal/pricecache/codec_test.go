package pricecache

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventstudy/pkg/contracts/domain"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateOnly, s)
	require.NoError(t, err)
	return d.UTC()
}

func sampleSeries(t *testing.T) domain.PriceSeries {
	return domain.PriceSeries{
		Ticker: "ACME",
		Points: []domain.PricePoint{
			{Date: day(t, "2024-01-02"), AdjustedClose: decimal.RequireFromString("100")},
			{Date: day(t, "2024-01-03"), AdjustedClose: decimal.RequireFromString("101.25")},
			{Date: day(t, "2024-01-04"), AdjustedClose: decimal.RequireFromString("99.9")},
		},
		FetchedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		FetchedRange: domain.NewDateRange(day(t, "2024-01-01"), day(t, "2024-02-01")),
	}
}

func TestWriteReadSeries_RoundTrip(t *testing.T) {
	series := sampleSeries(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSeries(&buf, series))

	got, err := ReadSeries(&buf)
	require.NoError(t, err)

	assert.Equal(t, series.Ticker, got.Ticker)
	assert.True(t, series.FetchedAt.Equal(got.FetchedAt))
	assert.Equal(t, series.FetchedRange, got.FetchedRange)
	require.Len(t, got.Points, len(series.Points))
	for i := range series.Points {
		assert.True(t, series.Points[i].Date.Equal(got.Points[i].Date))
		assert.True(t, series.Points[i].AdjustedClose.Equal(got.Points[i].AdjustedClose),
			"price %d: %s != %s", i, series.Points[i].AdjustedClose, got.Points[i].AdjustedClose)
	}
}

func TestWriteReadSeries_RoundTripTwice_Identical(t *testing.T) {
	series := sampleSeries(t)

	var first bytes.Buffer
	require.NoError(t, WriteSeries(&first, series))

	got, err := ReadSeries(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)

	var second bytes.Buffer
	require.NoError(t, WriteSeries(&second, got))

	assert.Equal(t, first.String(), second.String(), "serialization must be a fixed point")
}

func TestWriteSeries_RejectsUnsortedSeries(t *testing.T) {
	series := sampleSeries(t)
	series.Points[0], series.Points[1] = series.Points[1], series.Points[0]

	var buf bytes.Buffer
	err := WriteSeries(&buf, series)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not strictly increasing")
}

func TestReadSeries_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty file",
			content: "",
			wantErr: "missing ticker header",
		},
		{
			name:    "missing column header",
			content: "# ticker: ACME\n",
			wantErr: "missing column header",
		},
		{
			name:    "bad price",
			content: "# ticker: ACME\nDate,AdjustedClose\n2024-01-02,abc\n",
			wantErr: "bad price",
		},
		{
			name:    "bad date",
			content: "# ticker: ACME\nDate,AdjustedClose\n02/01/2024,100\n",
			wantErr: "bad date",
		},
		{
			name:    "duplicate dates",
			content: "# ticker: ACME\nDate,AdjustedClose\n2024-01-02,100\n2024-01-02,101\n",
			wantErr: "not strictly increasing",
		},
		{
			name:    "truncated mid-row",
			content: "# ticker: ACME\nDate,AdjustedClose\n2024-01-02,100\n2024-01-03",
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSeries(strings.NewReader(tt.content))
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestReadSeries_EmptyPointsIsValid(t *testing.T) {
	series := domain.PriceSeries{
		Ticker:       "ACME",
		FetchedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		FetchedRange: domain.NewDateRange(day(t, "2024-01-01"), day(t, "2024-01-05")),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSeries(&buf, series))

	got, err := ReadSeries(&buf)
	require.NoError(t, err)
	assert.Empty(t, got.Points)
	assert.Equal(t, series.FetchedRange, got.FetchedRange)
}
