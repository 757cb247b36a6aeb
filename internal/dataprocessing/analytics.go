package dataprocessing

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// weekdayNames maps time.Weekday to the Portuguese display name.
var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Segunda",
	time.Tuesday:   "Terça",
	time.Wednesday: "Quarta",
	time.Thursday:  "Quinta",
	time.Friday:    "Sexta",
	time.Saturday:  "Sábado",
	time.Sunday:    "Domingo",
}

// weekdayOrder is the Monday-first display order.
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// WeekdayName returns the Portuguese name of a weekday.
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

// HourlyStat aggregates one project line over one hour of day.
type HourlyStat struct {
	ProjectLine string  `json:"project_line"`
	Hour        int     `json:"hour"`
	Total       float64 `json:"total"`
	Mean        float64 `json:"mean"`
	Count       int     `json:"count"`
}

// DailyStat aggregates one project line over one day of month.
type DailyStat struct {
	ProjectLine string  `json:"project_line"`
	Day         int     `json:"day"`
	Total       float64 `json:"total"`
	Mean        float64 `json:"mean"`
	Count       int     `json:"count"`
}

// WeekdayStat aggregates one project line over one weekday.
type WeekdayStat struct {
	ProjectLine string  `json:"project_line"`
	Weekday     string  `json:"weekday"`
	Total       float64 `json:"total"`
	Mean        float64 `json:"mean"`
	Count       int     `json:"count"`
}

// DayHourStat aggregates one project line over one (day, hour) slot.
// Label follows the "<day>h<hour>" convention, e.g. "3h07".
type DayHourStat struct {
	ProjectLine string  `json:"project_line"`
	Day         int     `json:"day"`
	Hour        int     `json:"hour"`
	Label       string  `json:"label"`
	Total       float64 `json:"total"`
	Mean        float64 `json:"mean"`
	Count       int     `json:"count"`
}

type bucketAcc struct {
	total float64
	count int
}

func (b *bucketAcc) add(v float64) {
	b.total += v
	b.count++
}

func (b *bucketAcc) mean() float64 {
	if b.count == 0 {
		return 0
	}
	return b.total / float64(b.count)
}

// HourlyPatterns computes per-project sums, means and counts by hour of day.
// Results are ordered by project line, then hour.
func HourlyPatterns(table CleanedTable) []HourlyStat {
	type key struct {
		project string
		hour    int
	}
	acc := make(map[key]*bucketAcc)
	for _, rec := range table {
		k := key{rec.ProjectLine, rec.Hour}
		if acc[k] == nil {
			acc[k] = &bucketAcc{}
		}
		acc[k].add(rec.Quantity)
	}

	stats := make([]HourlyStat, 0, len(acc))
	for k, b := range acc {
		stats = append(stats, HourlyStat{
			ProjectLine: k.project,
			Hour:        k.hour,
			Total:       round2(b.total),
			Mean:        round2(b.mean()),
			Count:       b.count,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].ProjectLine != stats[j].ProjectLine {
			return stats[i].ProjectLine < stats[j].ProjectLine
		}
		return stats[i].Hour < stats[j].Hour
	})
	return stats
}

// DailyPatterns computes per-project sums, means and counts by day of month.
func DailyPatterns(table CleanedTable) []DailyStat {
	type key struct {
		project string
		day     int
	}
	acc := make(map[key]*bucketAcc)
	for _, rec := range table {
		k := key{rec.ProjectLine, rec.Day}
		if acc[k] == nil {
			acc[k] = &bucketAcc{}
		}
		acc[k].add(rec.Quantity)
	}

	stats := make([]DailyStat, 0, len(acc))
	for k, b := range acc {
		stats = append(stats, DailyStat{
			ProjectLine: k.project,
			Day:         k.day,
			Total:       round2(b.total),
			Mean:        round2(b.mean()),
			Count:       b.count,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].ProjectLine != stats[j].ProjectLine {
			return stats[i].ProjectLine < stats[j].ProjectLine
		}
		return stats[i].Day < stats[j].Day
	})
	return stats
}

// WeekdayPatterns computes per-project sums, means and counts by weekday,
// ordered Monday through Sunday with Portuguese names.
func WeekdayPatterns(table CleanedTable) []WeekdayStat {
	type key struct {
		project string
		weekday time.Weekday
	}
	acc := make(map[key]*bucketAcc)
	projects := make(map[string]struct{})
	for _, rec := range table {
		k := key{rec.ProjectLine, rec.Weekday}
		if acc[k] == nil {
			acc[k] = &bucketAcc{}
		}
		acc[k].add(rec.Quantity)
		projects[rec.ProjectLine] = struct{}{}
	}

	lines := make([]string, 0, len(projects))
	for p := range projects {
		lines = append(lines, p)
	}
	sort.Strings(lines)

	var stats []WeekdayStat
	for _, p := range lines {
		for _, wd := range weekdayOrder {
			b, ok := acc[key{p, wd}]
			if !ok {
				continue
			}
			stats = append(stats, WeekdayStat{
				ProjectLine: p,
				Weekday:     weekdayNames[wd],
				Total:       round2(b.total),
				Mean:        round2(b.mean()),
				Count:       b.count,
			})
		}
	}
	return stats
}

// DayHourPatterns computes per-project sums by (day of month, hour of day).
func DayHourPatterns(table CleanedTable) []DayHourStat {
	type key struct {
		project string
		day     int
		hour    int
	}
	acc := make(map[key]*bucketAcc)
	for _, rec := range table {
		k := key{rec.ProjectLine, rec.Day, rec.Hour}
		if acc[k] == nil {
			acc[k] = &bucketAcc{}
		}
		acc[k].add(rec.Quantity)
	}

	stats := make([]DayHourStat, 0, len(acc))
	for k, b := range acc {
		stats = append(stats, DayHourStat{
			ProjectLine: k.project,
			Day:         k.day,
			Hour:        k.hour,
			Label:       fmt.Sprintf("%dh%02d", k.day, k.hour),
			Total:       round2(b.total),
			Mean:        round2(b.mean()),
			Count:       b.count,
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].ProjectLine != stats[j].ProjectLine {
			return stats[i].ProjectLine < stats[j].ProjectLine
		}
		if stats[i].Day != stats[j].Day {
			return stats[i].Day < stats[j].Day
		}
		return stats[i].Hour < stats[j].Hour
	})
	return stats
}

// ProjectSummaryRow describes one project line over the whole filtered table.
type ProjectSummaryRow struct {
	ProjectLine string    `json:"project_line"`
	Total       float64   `json:"total"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Count       int       `json:"count"`
	FirstDate   time.Time `json:"first_date"`
	LastDate    time.Time `json:"last_date"`
	PeriodDays  int       `json:"period_days"`
}

// ProjectSummary computes descriptive statistics per project line. The
// period is the inclusive calendar span between first and last movement.
// All floats are rounded to two decimals.
func ProjectSummary(table CleanedTable) []ProjectSummaryRow {
	type acc struct {
		values []float64
		first  time.Time
		last   time.Time
	}
	byProject := make(map[string]*acc)
	for _, rec := range table {
		a, ok := byProject[rec.ProjectLine]
		if !ok {
			a = &acc{first: rec.Timestamp, last: rec.Timestamp}
			byProject[rec.ProjectLine] = a
		}
		a.values = append(a.values, rec.Quantity)
		if rec.Timestamp.Before(a.first) {
			a.first = rec.Timestamp
		}
		if rec.Timestamp.After(a.last) {
			a.last = rec.Timestamp
		}
	}

	rows := make([]ProjectSummaryRow, 0, len(byProject))
	for p, a := range byProject {
		var total, min, max float64
		min, max = a.values[0], a.values[0]
		for _, v := range a.values {
			total += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}

		var sd float64
		if len(a.values) > 1 {
			sd = stat.StdDev(a.values, nil)
		}

		firstDay := a.first.Truncate(24 * time.Hour)
		lastDay := a.last.Truncate(24 * time.Hour)
		period := int(lastDay.Sub(firstDay).Hours()/24) + 1

		rows = append(rows, ProjectSummaryRow{
			ProjectLine: p,
			Total:       round2(total),
			Mean:        round2(stat.Mean(a.values, nil)),
			StdDev:      round2(sd),
			Min:         round2(min),
			Max:         round2(max),
			Count:       len(a.values),
			FirstDate:   a.first,
			LastDate:    a.last,
			PeriodDays:  period,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].ProjectLine < rows[j].ProjectLine
	})
	return rows
}

// TimelinePoint is one hour-resolution point of one project's series.
type TimelinePoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// TimelineSeries groups the table into hour-floored sums per project line.
// Points within each series are ordered by time.
func TimelineSeries(table CleanedTable) map[string][]TimelinePoint {
	sums := make(map[string]map[time.Time]float64)
	for _, rec := range table {
		hour := rec.Timestamp.Truncate(time.Hour)
		if sums[rec.ProjectLine] == nil {
			sums[rec.ProjectLine] = make(map[time.Time]float64)
		}
		sums[rec.ProjectLine][hour] += rec.Quantity
	}

	series := make(map[string][]TimelinePoint, len(sums))
	for p, byHour := range sums {
		points := make([]TimelinePoint, 0, len(byHour))
		for t, v := range byHour {
			points = append(points, TimelinePoint{Time: t, Value: round2(v)})
		}
		sort.Slice(points, func(i, j int) bool {
			return points[i].Time.Before(points[j].Time)
		})
		series[p] = points
	}
	return series
}

// ComparisonRow pairs entrada and saída volume for one calendar day.
// Saída is reported as magnitude so the two sides compare directly.
type ComparisonRow struct {
	Date    time.Time `json:"date"`
	Entrada float64   `json:"entrada"`
	Saida   float64   `json:"saida"`
}

// DailyComparison aggregates a combined table into per-day entrada and
// saída totals, ordered by date.
func DailyComparison(table CleanedTable) []ComparisonRow {
	type sums struct {
		entrada float64
		saida   float64
	}
	byDay := make(map[time.Time]*sums)
	for _, rec := range table {
		day := rec.Timestamp.Truncate(24 * time.Hour)
		s, ok := byDay[day]
		if !ok {
			s = &sums{}
			byDay[day] = s
		}
		if rec.Kind == KindSaida {
			s.saida += math.Abs(rec.Quantity)
		} else {
			s.entrada += rec.Quantity
		}
	}

	rows := make([]ComparisonRow, 0, len(byDay))
	for day, s := range byDay {
		rows = append(rows, ComparisonRow{
			Date:    day,
			Entrada: round2(s.entrada),
			Saida:   round2(s.saida),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
	return rows
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
