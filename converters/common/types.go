package common

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the inferred type of a column. It is decided once per column
// from a scan of every value in it.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Float
	Temporal
)

// CanonicalTimeLayout is the textual form every Temporal value is stored in.
// It sorts lexically in time order and parses back with time.Parse.
const CanonicalTimeLayout = "2006-01-02 15:04:05.999999999"

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Temporal:
		return "temporal"
	default:
		return "text"
	}
}

// SQLType returns the SQLite column type used for t.
// Temporal values are stored as TEXT in CanonicalTimeLayout.
func (t ColumnType) SQLType() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Column describes one column of a Dataset.
type Column struct {
	Name    string
	Type    ColumnType
	Layouts []string // parse layouts for Temporal columns, tried in order
}

// Dataset is an in-memory table with named, typed columns.
// Row values are int64, float64, string or nil.
type Dataset struct {
	Columns []Column
	Rows    [][]any
}

// ColumnNames returns the column names in order.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

var (
	intRegex     = regexp.MustCompile(`^[+-]?\d+$`)
	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// isoLayouts are unambiguous year-first forms. A column may mix them freely.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// regionalLayouts need a single layout to hold for the whole column.
// Month-first comes before day-first, so 01/02/2021 reads as January 2nd
// unless some value in the column rules that out.
var regionalLayouts = []string{
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"1-2-2006",
	"1/2/06",
	"1-2-06",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2.1.2006 15:04:05",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

// InferColumns derives one typed Column per name from the rows.
// Rows shorter than names are treated as having empty trailing cells.
func InferColumns(names []string, rows [][]string) []Column {
	cols := make([]Column, len(names))
	values := make([]string, 0, len(rows))
	for i, name := range names {
		values = values[:0]
		for _, row := range rows {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		cols[i] = InferColumn(name, values)
	}
	return cols
}

// InferColumn picks the narrowest type that every non-empty value satisfies:
// integer, then float, then temporal, then text. A column with no values is text.
func InferColumn(name string, values []string) Column {
	nonEmpty := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	col := Column{Name: name, Type: Text}
	if len(nonEmpty) == 0 {
		return col
	}

	switch {
	case allMatch(nonEmpty, isInt):
		col.Type = Integer
	case allMatch(nonEmpty, numericRegex.MatchString):
		col.Type = Float
	default:
		if layouts := temporalLayouts(nonEmpty); layouts != nil {
			col.Type = Temporal
			col.Layouts = layouts
		}
	}
	return col
}

// Convert turns one raw cell into the value stored for this column.
// Empty cells become nil in every column type.
func (c Column) Convert(raw string) (any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if c.Type == Text && raw != "" {
			return raw, nil
		}
		return nil, nil
	}

	switch c.Type {
	case Integer:
		v, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		return v, nil
	case Float:
		v, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		return v, nil
	case Temporal:
		t, err := parseWith(c.Layouts, trimmed)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		return FormatTemporal(t), nil
	default:
		return raw, nil
	}
}

// FormatTemporal renders t in CanonicalTimeLayout. Zone-aware values are converted to UTC.
func FormatTemporal(t time.Time) string {
	return t.UTC().Format(CanonicalTimeLayout)
}

// ParseTemporal parses a value previously produced by FormatTemporal.
func ParseTemporal(s string) (time.Time, error) {
	return time.Parse(CanonicalTimeLayout, s)
}

// temporalLayouts returns the layouts a temporal column parses with, or nil.
func temporalLayouts(values []string) []string {
	if allMatch(values, func(v string) bool { return parsesWithAny(isoLayouts, v) }) {
		return isoLayouts
	}
	for _, layout := range regionalLayouts {
		if allMatch(values, func(v string) bool { return parses(layout, v) }) {
			return []string{layout}
		}
	}
	return nil
}

func parseWith(layouts []string, s string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date/time", s)
}

func parses(layout, s string) bool {
	_, err := time.Parse(layout, s)
	return err == nil
}

func parsesWithAny(layouts []string, s string) bool {
	for _, layout := range layouts {
		if parses(layout, s) {
			return true
		}
	}
	return false
}

// isInt requires a signed base-10 integer that fits in int64.
func isInt(s string) bool {
	if !intRegex.MatchString(s) {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}
