package exporter

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fluxo/internal/dataprocessing"
)

func sampleTable() dataprocessing.CleanedTable {
	ts := time.Date(2025, 8, 1, 14, 30, 0, 0, time.UTC)
	return dataprocessing.CleanedTable{
		{
			MotherLine:   "MAE-1",
			ProjectLine:  "ATO-1",
			SemiFinished: "SA-1",
			MovementCode: "601",
			Movement:     "Entrada Produção",
			Area:         "Montagem",
			Timestamp:    ts,
			Quantity:     5,
			Kind:         dataprocessing.KindEntrada,
		},
		{
			MotherLine:   "MAE-1",
			ProjectLine:  "ATO-1",
			SemiFinished: "SA-1",
			MovementCode: "602",
			Movement:     "Saída Produção",
			Area:         "Expedição",
			Timestamp:    ts.Add(time.Hour),
			Quantity:     -3,
			Kind:         dataprocessing.KindSaida,
		},
	}
}

func TestWriteWorkbookSheets(t *testing.T) {
	table := sampleTable()
	summary := dataprocessing.ProjectSummary(table)
	peaks := []dataprocessing.PeakSummaryRow{
		{ProjectLine: "ATO-1", Type: "Pico", Time: table[0].Timestamp, Value: 5},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, table, summary, peaks))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t,
		[]string{SheetFiltered, SheetSummary, SheetPeaks},
		f.GetSheetList())
}

func TestWriteWorkbookFilteredContent(t *testing.T) {
	table := sampleTable()

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, table, nil, nil))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetFiltered)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Linha MAE", rows[0][0])
	assert.Equal(t, "Tipo", rows[0][8])

	assert.Equal(t, "ATO-1", rows[1][1])
	assert.Equal(t, "01/08/2025 14:30:00", rows[1][4])
	assert.Equal(t, "Entrada", rows[1][8])
	assert.Equal(t, "Saída", rows[2][8])
}

func TestWriteWorkbookSummaryContent(t *testing.T) {
	table := sampleTable()
	summary := dataprocessing.ProjectSummary(table)

	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, table, summary, nil))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Linha ATO", rows[0][0])
	assert.Equal(t, "ATO-1", rows[1][0])
}

func TestWriteWorkbookEmptyPeaks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, sampleTable(), nil, nil))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetPeaks)
	require.NoError(t, err)
	// Header only.
	require.Len(t, rows, 1)
	assert.Equal(t, "Linha ATO", rows[0][0])
}

func TestFilename(t *testing.T) {
	ts := time.Date(2025, 8, 1, 14, 30, 45, 0, time.UTC)
	assert.Equal(t, "movimentos_20250801_143045.xlsx", Filename(ts))
}
