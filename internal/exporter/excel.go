// Package exporter writes filtered movement data and its derived analyses
// back out as an Excel workbook for offline use.
package exporter

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"fluxo/internal/dataprocessing"
)

// Sheet names of the exported workbook.
const (
	SheetFiltered = "Dados Filtrados"
	SheetSummary  = "Resumo por Projeto"
	SheetPeaks    = "Picos Detectados"
)

const timestampFormat = "02/01/2006 15:04:05"

// WriteWorkbook writes the three-sheet export workbook to w.
func WriteWorkbook(w io.Writer, table dataprocessing.CleanedTable, summary []dataprocessing.ProjectSummaryRow, peaks []dataprocessing.PeakSummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeFilteredSheet(f, table); err != nil {
		return fmt.Errorf("failed to write %s: %w", SheetFiltered, err)
	}
	if err := writeSummarySheet(f, summary); err != nil {
		return fmt.Errorf("failed to write %s: %w", SheetSummary, err)
	}
	if err := writePeaksSheet(f, peaks); err != nil {
		return fmt.Errorf("failed to write %s: %w", SheetPeaks, err)
	}

	// The default sheet is replaced by the three named ones.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetFiltered); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeFilteredSheet(f *excelize.File, table dataprocessing.CleanedTable) error {
	if _, err := f.NewSheet(SheetFiltered); err != nil {
		return err
	}

	header := []interface{}{
		"Linha MAE", "Linha ATO", "Semiacabado", "Quantidade",
		"Data Movimento", "Código Movimento", "Movimento", "Área", "Tipo",
	}
	if err := f.SetSheetRow(SheetFiltered, "A1", &header); err != nil {
		return err
	}

	for i, rec := range table {
		row := []interface{}{
			rec.MotherLine,
			rec.ProjectLine,
			rec.SemiFinished,
			rec.Quantity,
			rec.Timestamp.Format(timestampFormat),
			rec.MovementCode,
			rec.Movement,
			rec.Area,
			rec.Kind.Label(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetFiltered, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, summary []dataprocessing.ProjectSummaryRow) error {
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}

	header := []interface{}{
		"Linha ATO", "Total", "Média", "Desvio Padrão", "Mínimo", "Máximo",
		"Movimentos", "Primeira Data", "Última Data", "Período (dias)",
	}
	if err := f.SetSheetRow(SheetSummary, "A1", &header); err != nil {
		return err
	}

	for i, row := range summary {
		values := []interface{}{
			row.ProjectLine,
			row.Total,
			row.Mean,
			row.StdDev,
			row.Min,
			row.Max,
			row.Count,
			row.FirstDate.Format(timestampFormat),
			row.LastDate.Format(timestampFormat),
			row.PeriodDays,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSummary, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

func writePeaksSheet(f *excelize.File, peaks []dataprocessing.PeakSummaryRow) error {
	if _, err := f.NewSheet(SheetPeaks); err != nil {
		return err
	}

	header := []interface{}{"Linha ATO", "Tipo", "Data/Hora", "Quantidade"}
	if err := f.SetSheetRow(SheetPeaks, "A1", &header); err != nil {
		return err
	}

	for i, row := range peaks {
		values := []interface{}{
			row.ProjectLine,
			row.Type,
			row.Time.Format(timestampFormat),
			row.Value,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetPeaks, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// Filename builds the attachment name for an export started at ts.
func Filename(ts time.Time) string {
	return fmt.Sprintf("movimentos_%s.xlsx", ts.Format("20060102_150405"))
}
