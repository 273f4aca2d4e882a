package dataset

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Data"

// table renders query results back to stored labels, one row per result.
func table(meta *Meta, result *Result) (header []string, rows [][]string) {
	idx := newMetaIndex(meta)

	var indicators []string
	if len(result.Results) > 0 {
		for _, i := range meta.Indicators {
			if _, ok := result.Results[0].Values[i.ID]; ok {
				indicators = append(indicators, i.ID)
			}
		}
	}

	header = append(header, ColumnTimePeriod, ColumnTimeIdentifier, ColumnGeographicLevel, ColumnLocationCode, ColumnLocationName)
	for _, f := range meta.Filters {
		header = append(header, f.Column)
	}
	for _, id := range indicators {
		header = append(header, idx.indicators[id].Column)
	}

	rows = make([][]string, 0, len(result.Results))
	for _, r := range result.Results {
		row := []string{
			r.TimePeriod.Period,
			r.TimePeriod.Code,
			r.GeographicLevel,
			r.Location.Code,
			idx.locations[r.Location.ID].label,
		}
		for _, f := range meta.Filters {
			row = append(row, idx.options[r.Filters[f.ID]].label)
		}
		for _, id := range indicators {
			row = append(row, r.Values[id])
		}
		rows = append(rows, row)
	}
	return header, rows
}

// WriteCSV writes the results with the same columns as the source file.
func WriteCSV(w io.Writer, meta *Meta, result *Result) error {
	header, rows := table(meta, result)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}
	return nil
}

// WriteXLSX writes the results as a single sheet workbook.
func WriteXLSX(w io.Writer, meta *Meta, result *Result) error {
	header, rows := table(meta, result)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("creating stream writer: %w", err)
	}

	writeRow := func(n int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return sw.SetRow(cell, row)
	}

	if err := writeRow(1, header); err != nil {
		return fmt.Errorf("writing header row: %w", err)
	}
	for i, r := range rows {
		if err := writeRow(i+2, r); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
