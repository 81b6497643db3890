package exporter

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"eventstudy/pkg/contracts/domain"
)

const enrichedSheet = "Events"

// WriteEnrichedWorkbook writes the enriched table as an Excel workbook.
// Return columns are written as numeric cells; a missing return stays an
// empty cell so spreadsheet aggregates skip it instead of counting zero.
func WriteEnrichedWorkbook(path string, rows []domain.EnrichedRow, windows []int) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", enrichedSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := EnrichedHeader(rows, windows)
	headerCells := make([]interface{}, len(header))
	for i, name := range header {
		headerCells[i] = name
	}
	if err := f.SetSheetRow(enrichedSheet, "A1", &headerCells); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	extras := header[4 : len(header)-3*len(windows)]
	for n, row := range rows {
		cells := make([]interface{}, 0, len(header))
		cells = append(cells,
			row.Ticker,
			row.EventDate.Format(domain.DateOnly),
			row.QASentScore,
			optStringCell(row.AnchorDate),
		)
		for _, k := range extras {
			cells = append(cells, row.Extra[k])
		}
		for _, w := range windows {
			wr := row.Windows[w]
			cells = append(cells,
				optFloatCell(wr.Raw),
				optFloatCell(wr.Benchmark),
				optFloatCell(wr.Abnormal))
		}

		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", n, err)
		}
		if err := f.SetSheetRow(enrichedSheet, cell, &cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", n, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func optFloatCell(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func optStringCell(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
