package dataprocessing

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts is the layout cascade for the combined date/time column.
// Day-first formats come first; the file convention is DD/MM/YYYY HH:MM:SS.
var timestampLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// excelEpoch is day zero of Excel's 1900 date system (serial 1 = 1900-01-01,
// with the historical off-by-two for the phantom 1900 leap day).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ValidateColumns checks the fixed required header set and returns the names
// of every missing column, in contract order. An empty result means valid.
func ValidateColumns(t *RawTable) []string {
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := t.ColumnIndex(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// ParseTemporal converts raw rows into movement records. The combined
// "Data Movimento" column is parsed through the layout cascade and split
// into timestamp, day, hour, month, year and weekday; "Quantidade" is parsed
// as a float. Rows failing either parse are excluded and counted, never
// corrupting the output. The result is sorted by timestamp.
func ParseTemporal(t *RawTable) (CleanedTable, ParseReport) {
	report := ParseReport{TotalRows: len(t.Rows)}
	table := make(CleanedTable, 0, len(t.Rows))

	for _, row := range t.Rows {
		ts, ok := parseTimestamp(t.Cell(row, ColTimestamp))
		if !ok {
			report.DroppedBadTimestamp++
			continue
		}

		qty, ok := parseQuantity(t.Cell(row, ColQuantity))
		if !ok {
			report.DroppedBadQuantity++
			continue
		}

		table = append(table, MovementRecord{
			MotherLine:   t.Cell(row, ColMotherLine),
			ProjectLine:  t.Cell(row, ColProjectLine),
			SemiFinished: t.Cell(row, ColSemiFinished),
			MovementCode: t.Cell(row, ColMovementCode),
			Movement:     t.Cell(row, ColMovement),
			Area:         t.Cell(row, ColArea),
			Timestamp:    ts,
			Day:          ts.Day(),
			Hour:         ts.Hour(),
			Month:        int(ts.Month()),
			Year:         ts.Year(),
			Weekday:      ts.Weekday(),
			Quantity:     qty,
		})
	}

	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Timestamp.Before(table[j].Timestamp)
	})

	report.ParsedRows = len(table)
	return table, report
}

// parseTimestamp tries the layout cascade, then an Excel serial number.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}

	// Some engines surface datetime cells as raw Excel serial numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		days := math.Floor(serial)
		frac := serial - days
		ts := excelEpoch.AddDate(0, 0, int(days)).
			Add(time.Duration(math.Round(frac * 24 * 3600)) * time.Second)
		if ts.Year() >= 1990 && ts.Year() <= 2100 {
			return ts, true
		}
	}

	return time.Time{}, false
}

// parseQuantity parses a numeric cell in plain, US ("1,234.56") or Brazilian
// ("1.234,56", "1,5") notation. The separator role is decided by shape: a
// lone comma with one or two trailing digits is a decimal mark, commas are
// thousands separators only when they group exactly three digits. Values
// fitting neither shape are rejected so the row is dropped and counted
// instead of being misread.
func parseQuantity(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case !hasComma:
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil

	case hasDot:
		// Both separators present: the rightmost one is the decimal mark.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			cleaned := strings.ReplaceAll(s, ".", "")
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
			v, err := strconv.ParseFloat(cleaned, 64)
			return v, err == nil
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		return v, err == nil

	default:
		// Comma only: "1,5" is a decimal, "1,234" a thousands group.
		idx := strings.LastIndex(s, ",")
		frac := s[idx+1:]
		if strings.Count(s, ",") == 1 && (len(frac) == 1 || len(frac) == 2) {
			v, err := strconv.ParseFloat(s[:idx]+"."+frac, 64)
			return v, err == nil
		}
		parts := strings.Split(s, ",")
		for _, group := range parts[1:] {
			if len(group) != 3 {
				return 0, false
			}
		}
		v, err := strconv.ParseFloat(strings.Join(parts, ""), 64)
		return v, err == nil
	}
}

// Normalize tags every record with its declared kind and enforces the sign
// convention: entrada quantities are non-negative, saída quantities are
// non-positive. Normalizing an already-normalized table is a no-op.
func Normalize(table CleanedTable, kind Kind) CleanedTable {
	out := make(CleanedTable, len(table))
	for i, rec := range table {
		rec.Kind = kind
		switch kind {
		case KindSaida:
			rec.Quantity = -math.Abs(rec.Quantity)
		default:
			rec.Quantity = math.Abs(rec.Quantity)
		}
		out[i] = rec
	}
	return out
}

// ApplyFilters restricts the table to the given project lines and to records
// whose calendar day falls inside [from, to]. Zero bounds and an empty
// project set mean "no restriction".
func ApplyFilters(table CleanedTable, projects []string, from, to time.Time) CleanedTable {
	var allow map[string]struct{}
	if len(projects) > 0 {
		allow = make(map[string]struct{}, len(projects))
		for _, p := range projects {
			allow[p] = struct{}{}
		}
	}

	out := make(CleanedTable, 0, len(table))
	for _, rec := range table {
		if allow != nil {
			if _, ok := allow[rec.ProjectLine]; !ok {
				continue
			}
		}
		day := rec.Timestamp.Truncate(24 * time.Hour)
		if !from.IsZero() && day.Before(from.Truncate(24*time.Hour)) {
			continue
		}
		if !to.IsZero() && day.After(to.Truncate(24*time.Hour)) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
