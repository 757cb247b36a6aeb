// Package charts renders the dashboard visualizations as self-contained
// ECharts HTML pages.
package charts

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"fluxo/internal/dataprocessing"
)

const (
	entradaColor = "#2e7d32"
	saidaColor   = "#c62828"

	chartWidth  = "1200px"
	chartHeight = "560px"

	// axisTimeFormat labels one hour bucket. The year is kept so buckets
	// from different years never collapse into one axis point.
	axisTimeFormat = "02/01/2006 15h"
)

// Chart is anything that can render itself as a standalone HTML page.
type Chart interface {
	Render(w io.Writer) error
}

func baseOptions(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(true),
			Top:  "bottom",
		}),
		charts.WithDataZoomOpts(opts.DataZoom{
			Type:  "slider",
			Start: 0,
			End:   100,
		}),
	}
}

// Timeline plots the hour-resolution movement series of every project line.
// Saída series are drawn dashed, with a marker at zero separating the two
// movement directions.
func Timeline(title string, series map[string][]dataprocessing.TimelinePoint, kind dataprocessing.Kind) Chart {
	line := charts.NewLine()
	line.SetGlobalOptions(baseOptions(title, "Quantidade por hora")...)

	lines := make([]string, 0, len(series))
	for p := range series {
		lines = append(lines, p)
	}
	sort.Strings(lines)

	// All series share one time axis built from the union of hour buckets,
	// ordered chronologically. Labels are formatted only after sorting so
	// month boundaries keep their order.
	bucketSet := make(map[int64]time.Time)
	for _, points := range series {
		for _, pt := range points {
			bucketSet[pt.Time.Unix()] = pt.Time
		}
	}
	buckets := make([]time.Time, 0, len(bucketSet))
	for _, t := range bucketSet {
		buckets = append(buckets, t)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	axis := make([]string, len(buckets))
	axisIdx := make(map[int64]int, len(buckets))
	for i, t := range buckets {
		axis[i] = t.Format(axisTimeFormat)
		axisIdx[t.Unix()] = i
	}

	line.SetXAxis(axis)
	for _, p := range lines {
		data := make([]opts.LineData, len(axis))
		for i := range data {
			data[i] = opts.LineData{Value: nil}
		}
		for _, pt := range series[p] {
			data[axisIdx[pt.Time.Unix()]] = opts.LineData{Value: pt.Value}
		}

		seriesOpts := []charts.SeriesOpts{
			charts.WithLineChartOpts(opts.LineChart{ConnectNulls: opts.Bool(true)}),
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{Name: "zero", YAxis: 0}),
		}
		if kind == dataprocessing.KindSaida {
			seriesOpts = append(seriesOpts,
				charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
		}
		line.AddSeries(p, data, seriesOpts...)
	}
	return line
}

// HourlyAggregate plots per-hour totals as bars stacked by project line.
func HourlyAggregate(title string, stats []dataprocessing.HourlyStat) Chart {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseOptions(title, "Total por hora do dia")...)

	axis := make([]string, 24)
	for h := 0; h < 24; h++ {
		axis[h] = fmt.Sprintf("%02dh", h)
	}
	bar.SetXAxis(axis)

	byProject := make(map[string][]opts.BarData)
	var lines []string
	for _, s := range stats {
		if _, ok := byProject[s.ProjectLine]; !ok {
			byProject[s.ProjectLine] = make([]opts.BarData, 24)
			lines = append(lines, s.ProjectLine)
		}
		byProject[s.ProjectLine][s.Hour] = opts.BarData{Value: s.Total}
	}
	sort.Strings(lines)

	for _, p := range lines {
		bar.AddSeries(p, byProject[p],
			charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
	}
	return bar
}

// CompareEntradaSaida plots entrada and saída daily volume side by side.
func CompareEntradaSaida(title string, rows []dataprocessing.ComparisonRow) Chart {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseOptions(title, "Entrada vs Saída por dia")...)

	axis := make([]string, len(rows))
	entrada := make([]opts.BarData, len(rows))
	saida := make([]opts.BarData, len(rows))
	for i, r := range rows {
		axis[i] = r.Date.Format("02/01/2006")
		entrada[i] = opts.BarData{Value: r.Entrada}
		saida[i] = opts.BarData{Value: r.Saida}
	}

	bar.SetXAxis(axis)
	bar.AddSeries("Entrada", entrada,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: entradaColor}))
	bar.AddSeries("Saída", saida,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: saidaColor}))
	return bar
}

// Peaks plots one project's hourly series with detected highs and lows
// overlaid as scatter markers.
func Peaks(title string, points []dataprocessing.TimelinePoint, peaks dataprocessing.ProjectPeaks) Chart {
	line := charts.NewLine()
	line.SetGlobalOptions(baseOptions(title, peaks.ProjectLine)...)

	// Points arrive time-sorted; the axis follows their order and is
	// indexed by bucket time, not label.
	axis := make([]string, len(points))
	data := make([]opts.LineData, len(points))
	axisIdx := make(map[int64]int, len(points))
	for i, pt := range points {
		axis[i] = pt.Time.Format(axisTimeFormat)
		axisIdx[pt.Time.Unix()] = i
		data[i] = opts.LineData{Value: pt.Value}
	}
	line.SetXAxis(axis)
	line.AddSeries("Quantidade", data)

	scatter := charts.NewScatter()
	highs := make([]opts.ScatterData, len(axis))
	lows := make([]opts.ScatterData, len(axis))
	for _, h := range peaks.Highs {
		if i, ok := axisIdx[h.Time.Unix()]; ok {
			highs[i] = opts.ScatterData{Value: h.Value, Symbol: "triangle", SymbolSize: 14}
		}
	}
	for _, l := range peaks.Lows {
		if i, ok := axisIdx[l.Time.Unix()]; ok {
			lows[i] = opts.ScatterData{Value: l.Value, Symbol: "arrow", SymbolSize: 14}
		}
	}
	scatter.AddSeries("Picos", highs,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: saidaColor}))
	scatter.AddSeries("Vales", lows,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: entradaColor}))

	line.Overlap(scatter)
	return line
}

// Weekday plots per-weekday totals grouped by project line, Monday first.
func Weekday(title string, stats []dataprocessing.WeekdayStat) Chart {
	bar := charts.NewBar()
	bar.SetGlobalOptions(baseOptions(title, "Total por dia da semana")...)

	axis := []string{"Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado", "Domingo"}
	axisIdx := make(map[string]int, len(axis))
	for i, name := range axis {
		axisIdx[name] = i
	}
	bar.SetXAxis(axis)

	byProject := make(map[string][]opts.BarData)
	var lines []string
	for _, s := range stats {
		if _, ok := byProject[s.ProjectLine]; !ok {
			byProject[s.ProjectLine] = make([]opts.BarData, len(axis))
			lines = append(lines, s.ProjectLine)
		}
		byProject[s.ProjectLine][axisIdx[s.Weekday]] = opts.BarData{Value: s.Total}
	}
	sort.Strings(lines)

	for _, p := range lines {
		bar.AddSeries(p, byProject[p])
	}
	return bar
}
