package dataprocessing

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind identifies the movement direction of an uploaded file.
type Kind string

const (
	KindEntrada Kind = "entrada"
	KindSaida   Kind = "saida"
)

// ParseKind normalizes a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entrada":
		return KindEntrada, nil
	case "saida", "saída":
		return KindSaida, nil
	default:
		return "", fmt.Errorf("unknown movement kind: %q", s)
	}
}

// Label returns the display name used in charts and exports.
func (k Kind) Label() string {
	switch k {
	case KindEntrada:
		return "Entrada"
	case KindSaida:
		return "Saída"
	default:
		return string(k)
	}
}

// RequiredColumns is the fixed header contract of uploaded movement files.
var RequiredColumns = []string{
	"Linha MAE",
	"Linha ATO",
	"Semiacabado",
	"Quantidade",
	"Data Movimento",
	"Código Movimento",
	"Movimento",
	"Área",
}

// Column names referenced individually during parsing.
const (
	ColMotherLine   = "Linha MAE"
	ColProjectLine  = "Linha ATO"
	ColSemiFinished = "Semiacabado"
	ColQuantity     = "Quantidade"
	ColTimestamp    = "Data Movimento"
	ColMovementCode = "Código Movimento"
	ColMovement     = "Movimento"
	ColArea         = "Área"
)

// RawTable is the tabular output of a decode engine: one header row plus
// data rows, all cells as strings.
type RawTable struct {
	Header []string
	Rows   [][]string

	columns map[string]int
}

// NewRawTable builds a RawTable and indexes its header.
func NewRawTable(header []string, rows [][]string) *RawTable {
	t := &RawTable{Header: header, Rows: rows}
	t.columns = make(map[string]int, len(header))
	for i, name := range header {
		t.columns[strings.TrimSpace(name)] = i
	}
	return t
}

// ColumnIndex returns the position of a named column.
func (t *RawTable) ColumnIndex(name string) (int, bool) {
	i, ok := t.columns[name]
	return i, ok
}

// Cell returns the trimmed value of a named column in the given row,
// or "" when the row is too short.
func (t *RawTable) Cell(row []string, name string) string {
	i, ok := t.columns[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// MovementRecord is one cleaned movement row.
type MovementRecord struct {
	MotherLine   string       `json:"mother_line"`
	ProjectLine  string       `json:"project_line"`
	SemiFinished string       `json:"semi_finished"`
	MovementCode string       `json:"movement_code"`
	Movement     string       `json:"movement"`
	Area         string       `json:"area"`
	Timestamp    time.Time    `json:"timestamp"`
	Day          int          `json:"day"`
	Hour         int          `json:"hour"`
	Month        int          `json:"month"`
	Year         int          `json:"year"`
	Weekday      time.Weekday `json:"weekday"`
	Quantity     float64      `json:"quantity"`
	Kind         Kind         `json:"kind"`
}

// CleanedTable is an ordered sequence of movement records, sorted by timestamp.
type CleanedTable []MovementRecord

// ParseReport counts row outcomes of one temporal parse.
type ParseReport struct {
	TotalRows           int `json:"total_rows"`
	ParsedRows          int `json:"parsed_rows"`
	DroppedBadTimestamp int `json:"dropped_bad_timestamp"`
	DroppedBadQuantity  int `json:"dropped_bad_quantity"`
}

// Dropped returns the total number of excluded rows.
func (r ParseReport) Dropped() int {
	return r.DroppedBadTimestamp + r.DroppedBadQuantity
}

// ProjectLines returns the distinct project lines of the table, sorted.
func (t CleanedTable) ProjectLines() []string {
	seen := make(map[string]struct{})
	var lines []string
	for _, rec := range t {
		if _, ok := seen[rec.ProjectLine]; !ok {
			seen[rec.ProjectLine] = struct{}{}
			lines = append(lines, rec.ProjectLine)
		}
	}
	sort.Strings(lines)
	return lines
}

// TimeRange returns the first and last timestamp of the table.
func (t CleanedTable) TimeRange() (time.Time, time.Time) {
	if len(t) == 0 {
		return time.Time{}, time.Time{}
	}
	min, max := t[0].Timestamp, t[0].Timestamp
	for _, rec := range t[1:] {
		if rec.Timestamp.Before(min) {
			min = rec.Timestamp
		}
		if rec.Timestamp.After(max) {
			max = rec.Timestamp
		}
	}
	return min, max
}
