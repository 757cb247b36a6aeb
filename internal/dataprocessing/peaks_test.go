package dataprocessing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourlyTable(project string, values []float64) CleanedTable {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	table := make(CleanedTable, 0, len(values))
	for i, v := range values {
		table = append(table, record(project, base.Add(time.Duration(i)*time.Hour), v, KindEntrada))
	}
	return table
}

func TestDetectPeaksFindsHighsAndLows(t *testing.T) {
	table := hourlyTable("ATO-1", []float64{5, 1, 9, 2, 8, 0, 7})

	peaks := DetectPeaks(table)
	require.Len(t, peaks, 1)
	pp := peaks[0]
	assert.Equal(t, "ATO-1", pp.ProjectLine)

	// Sorted values [0 1 2 5 7 8 9]: interpolated p75 = 7.25, p25 = 0.75.
	require.Len(t, pp.Highs, 2)
	assert.Equal(t, 9.0, pp.Highs[0].Value)
	assert.Equal(t, 8.0, pp.Highs[1].Value)

	require.Len(t, pp.Lows, 1)
	assert.Equal(t, 0.0, pp.Lows[0].Value)
}

func TestDetectPeaksKeepsPeaksTwoApart(t *testing.T) {
	// Two strict maxima separated by exactly the minimum spacing both
	// survive, in ascending time order.
	table := hourlyTable("ATO-1", []float64{0, 9, 5, 10, 0, 1, 0})

	peaks := DetectPeaks(table)
	require.Len(t, peaks, 1)

	values := make([]float64, 0, len(peaks[0].Highs))
	for _, h := range peaks[0].Highs {
		values = append(values, h.Value)
	}
	assert.Equal(t, []float64{9, 10}, values)
}

func TestDetectPeaksSkipsShortSeries(t *testing.T) {
	table := hourlyTable("ATO-1", []float64{1, 9})
	assert.Empty(t, DetectPeaks(table))
}

func TestDetectPeaksFlatSeries(t *testing.T) {
	table := hourlyTable("ATO-1", []float64{5, 5, 5, 5, 5})
	assert.Empty(t, DetectPeaks(table))
}

func TestDetectPeaksPerProject(t *testing.T) {
	table := append(
		hourlyTable("ATO-2", []float64{5, 1, 9, 2, 8, 0, 7}),
		hourlyTable("ATO-1", []float64{0, 0, 0, 0, 0})...,
	)

	peaks := DetectPeaks(table)
	require.Len(t, peaks, 1)
	assert.Equal(t, "ATO-2", peaks[0].ProjectLine)
}

func TestPeaksSummaryOrdering(t *testing.T) {
	table := hourlyTable("ATO-1", []float64{5, 1, 9, 2, 8, 0, 7})
	rows := PeaksSummary(DetectPeaks(table))
	require.Len(t, rows, 3)

	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Time.Before(rows[i-1].Time))
	}

	types := map[string]int{}
	for _, r := range rows {
		assert.Equal(t, "ATO-1", r.ProjectLine)
		types[r.Type]++
	}
	assert.Equal(t, 2, types["Pico"])
	assert.Equal(t, 1, types["Vale"])
}

func TestFindPeaksHeightThreshold(t *testing.T) {
	values := []float64{0, 3, 0, 8, 0}
	// Only the local maximum clearing the threshold is reported.
	got := findPeaks(values, 5, false)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0])
}
