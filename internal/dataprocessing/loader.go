package dataprocessing

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// DecodeError reports that every decode engine rejected the file.
type DecodeError struct {
	PrimaryErr  error
	FallbackErr error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("file unreadable: primary engine: %v; fallback engine: %v", e.PrimaryErr, e.FallbackErr)
}

// Load decodes an uploaded spreadsheet into a RawTable. The primary engine
// (excelize, .xlsx) is tried first regardless of file extension, then the
// legacy .xls engine; a DecodeError is returned only when both fail.
func Load(data []byte, logger *slog.Logger) (*RawTable, error) {
	if logger == nil {
		logger = slog.Default()
	}

	table, primaryErr := loadXLSX(data)
	if primaryErr == nil {
		logger.Debug("file decoded by primary engine",
			slog.Int("rows", len(table.Rows)))
		return table, nil
	}

	table, fallbackErr := loadXLS(data)
	if fallbackErr == nil {
		logger.Debug("file decoded by fallback engine",
			slog.Int("rows", len(table.Rows)))
		return table, nil
	}

	logger.Warn("both decode engines failed",
		slog.String("primary_error", primaryErr.Error()),
		slog.String("fallback_error", fallbackErr.Error()))

	return nil, &DecodeError{PrimaryErr: primaryErr, FallbackErr: fallbackErr}
}

// loadXLSX decodes an .xlsx workbook with excelize.
func loadXLSX(data []byte) (*RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var best [][]string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		if sheetLooksLikeMovementData(rows) {
			best = rows
			break
		}
		if best == nil {
			best = rows
		}
	}

	if len(best) == 0 {
		return nil, fmt.Errorf("workbook contains no non-empty sheet")
	}

	return tableFromRows(best)
}

// loadXLS decodes a legacy .xls workbook.
func loadXLS(data []byte) (*RawTable, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy workbook: %w", err)
	}

	sheets := wb.GetNumberSheets()
	var best [][]string
	for i := 0; i < sheets; i++ {
		sheet, err := wb.GetSheet(i)
		if err != nil {
			continue
		}

		var rows [][]string
		for j := 0; j <= sheet.GetNumberRows(); j++ {
			row, err := sheet.GetRow(j)
			if err != nil {
				continue
			}
			var cells []string
			for _, col := range row.GetCols() {
				cells = append(cells, col.GetString())
			}
			rows = append(rows, cells)
		}
		if len(rows) == 0 {
			continue
		}
		if sheetLooksLikeMovementData(rows) {
			best = rows
			break
		}
		if best == nil {
			best = rows
		}
	}

	if len(best) == 0 {
		return nil, fmt.Errorf("legacy workbook contains no non-empty sheet")
	}

	return tableFromRows(best)
}

// sheetLooksLikeMovementData reports whether any of the first rows carries
// the movement header.
func sheetLooksLikeMovementData(rows [][]string) bool {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		if isHeaderRow(rows[i]) {
			return true
		}
	}
	return false
}

// isHeaderRow reports whether a row contains the anchor columns of the
// movement header.
func isHeaderRow(row []string) bool {
	rowText := strings.ToLower(strings.Join(row, " "))
	return strings.Contains(rowText, strings.ToLower(ColProjectLine)) &&
		strings.Contains(rowText, strings.ToLower(ColTimestamp))
}

// tableFromRows locates the header row and builds the RawTable from the
// rows beneath it, skipping fully empty rows.
func tableFromRows(rows [][]string) (*RawTable, error) {
	headerIdx := -1
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	for i := 0; i < limit; i++ {
		if isHeaderRow(rows[i]) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		// No recognizable header; treat the first row as the header and let
		// column validation report what is missing.
		headerIdx = 0
	}

	header := make([]string, len(rows[headerIdx]))
	for i, cell := range rows[headerIdx] {
		header[i] = strings.TrimSpace(cell)
	}

	var dataRows [][]string
	for _, row := range rows[headerIdx+1:] {
		if rowIsEmpty(row) {
			continue
		}
		dataRows = append(dataRows, row)
	}

	return NewRawTable(header, dataRows), nil
}

// rowIsEmpty reports whether every cell of the row is blank.
func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
