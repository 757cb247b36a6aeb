package dataprocessing

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// minPeakDistance is the minimum spacing between two reported peaks,
// in series positions.
const minPeakDistance = 2

// PeakPoint is one detected extreme in a project's hourly series.
type PeakPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// ProjectPeaks holds the highs and lows detected for one project line.
type ProjectPeaks struct {
	ProjectLine string      `json:"project_line"`
	Highs       []PeakPoint `json:"highs"`
	Lows        []PeakPoint `json:"lows"`
}

// PeakSummaryRow is one extreme in the flattened, export-friendly form.
type PeakSummaryRow struct {
	ProjectLine string    `json:"project_line"`
	Type        string    `json:"type"` // "Pico" or "Vale"
	Time        time.Time `json:"time"`
	Value       float64   `json:"value"`
}

// DetectPeaks finds local maxima above the 75th percentile and local minima
// below the 25th percentile of each project's hour-floored series. Series
// with fewer than three points are skipped; reported extremes are at least
// two positions apart. Results are ordered by project line.
func DetectPeaks(table CleanedTable) []ProjectPeaks {
	series := TimelineSeries(table)

	lines := make([]string, 0, len(series))
	for p := range series {
		lines = append(lines, p)
	}
	sort.Strings(lines)

	var out []ProjectPeaks
	for _, p := range lines {
		points := series[p]
		if len(points) < 3 {
			continue
		}

		values := make([]float64, len(points))
		for i, pt := range points {
			values[i] = pt.Value
		}

		// Interpolated quantiles; a sample-point quantile overshoots the
		// thresholds on short series.
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		p75 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
		p25 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)

		highs := findPeaks(values, p75, false)
		lows := findPeaks(values, p25, true)

		pp := ProjectPeaks{ProjectLine: p}
		for _, i := range highs {
			pp.Highs = append(pp.Highs, PeakPoint(points[i]))
		}
		for _, i := range lows {
			pp.Lows = append(pp.Lows, PeakPoint(points[i]))
		}
		if len(pp.Highs) == 0 && len(pp.Lows) == 0 {
			continue
		}
		out = append(out, pp)
	}
	return out
}

// findPeaks returns the indexes of strict local maxima of values that clear
// the threshold (local minima below it when invert is set), keeping only
// extremes at least minPeakDistance positions apart. Ties on spacing are
// broken in favor of the more prominent extreme. Indexes are ascending.
func findPeaks(values []float64, threshold float64, invert bool) []int {
	var candidates []int
	for i := 1; i < len(values)-1; i++ {
		if invert {
			if values[i] < values[i-1] && values[i] < values[i+1] && values[i] <= threshold {
				candidates = append(candidates, i)
			}
		} else {
			if values[i] > values[i-1] && values[i] > values[i+1] && values[i] >= threshold {
				candidates = append(candidates, i)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// Most prominent first, then greedily enforce spacing.
	sort.Slice(candidates, func(a, b int) bool {
		if invert {
			return values[candidates[a]] < values[candidates[b]]
		}
		return values[candidates[a]] > values[candidates[b]]
	})

	var kept []int
	for _, c := range candidates {
		ok := true
		for _, k := range kept {
			if abs(c-k) < minPeakDistance {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}

	sort.Ints(kept)
	return kept
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// PeaksSummary flattens detection results into rows ordered by project
// line and time, with lows labeled "Vale" and highs labeled "Pico".
func PeaksSummary(peaks []ProjectPeaks) []PeakSummaryRow {
	var rows []PeakSummaryRow
	for _, pp := range peaks {
		for _, h := range pp.Highs {
			rows = append(rows, PeakSummaryRow{
				ProjectLine: pp.ProjectLine,
				Type:        "Pico",
				Time:        h.Time,
				Value:       h.Value,
			})
		}
		for _, l := range pp.Lows {
			rows = append(rows, PeakSummaryRow{
				ProjectLine: pp.ProjectLine,
				Type:        "Vale",
				Time:        l.Time,
				Value:       l.Value,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ProjectLine != rows[j].ProjectLine {
			return rows[i].ProjectLine < rows[j].ProjectLine
		}
		return rows[i].Time.Before(rows[j].Time)
	})
	return rows
}
