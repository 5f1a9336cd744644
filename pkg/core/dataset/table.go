// Package dataset holds the loosely typed tabular payloads delivered by the
// TWSE open-data endpoints. Upstream schemas are fragile (column presence is
// probed, never assumed), so a Table carries whatever columns the source
// shipped and lets later stages rename, filter and coerce them.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Row maps a column name to its raw value. Values are whatever the JSON
// decoder produced (string or float64); nil marks a missing value.
type Row map[string]any

// Table is an ordered set of columns plus the rows beneath them.
type Table struct {
	Columns []string
	Rows    []Row
}

// SourceTable pairs a table with the key of the source that produced it.
// Slices of SourceTable preserve fetch order, which downstream merge logic
// relies on for its first-source-wins tie-break.
type SourceTable struct {
	Key   string
	Table *Table
}

// New creates an empty table with the given column order.
func New(columns []string) *Table {
	return &Table{Columns: columns}
}

// FromJSON decodes an upstream array-of-objects payload. Column order is the
// sorted union of keys seen across rows, so repeated decodes of the same
// payload yield identical tables.
func FromJSON(payload []byte) (*Table, error) {
	var raw []map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode array-of-objects payload: %w", err)
	}

	seen := map[string]bool{}
	for _, obj := range raw {
		for k := range obj {
			seen[k] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	t := New(columns)
	for _, obj := range raw {
		row := Row{}
		for _, col := range columns {
			row[col] = obj[col]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether the column exists.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// RenameColumn renames a column in place. Renaming an absent column or
// renaming a column to itself is a no-op, so renames are safe to reapply.
func (t *Table) RenameColumn(from, to string) {
	if from == to || !t.HasColumn(from) {
		return
	}
	for i, c := range t.Columns {
		if c == from {
			t.Columns[i] = to
		}
	}
	for _, row := range t.Rows {
		if v, ok := row[from]; ok {
			row[to] = v
			delete(row, from)
		}
	}
}

// DropColumn removes a column and its values. Absent columns are a no-op.
func (t *Table) DropColumn(name string) {
	if !t.HasColumn(name) {
		return
	}
	kept := t.Columns[:0]
	for _, c := range t.Columns {
		if c != name {
			kept = append(kept, c)
		}
	}
	t.Columns = kept
	for _, row := range t.Rows {
		delete(row, name)
	}
}

// Filter returns a new table containing the rows for which keep returns true.
// Column order is shared with the receiver.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Clone returns a deep copy. Merge mutates its accumulator, so callers hand
// it copies rather than cached tables.
func (t *Table) Clone() *Table {
	out := New(append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		dup := make(Row, len(row))
		for k, v := range row {
			dup[k] = v
		}
		out.Rows = append(out.Rows, dup)
	}
	return out
}

// CoerceString rewrites every value in the column as its string form.
// Sources disagree on whether stock codes are strings or numbers; comparing
// them requires both sides coerced to string first.
func (t *Table) CoerceString(column string) {
	if !t.HasColumn(column) {
		return
	}
	for _, row := range t.Rows {
		if v, ok := row[column]; ok && v != nil {
			row[column] = AsString(v)
		}
	}
}

// CoerceNumeric parses every value in the column to float64. Unparseable
// values become nil rather than an error.
func (t *Table) CoerceNumeric(column string) {
	if !t.HasColumn(column) {
		return
	}
	for _, row := range t.Rows {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		if f, ok := ParseFloat(v); ok {
			row[column] = f
		} else {
			row[column] = nil
		}
	}
}

// WriteCSV streams the table as comma-separated values with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = AsString(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// AsString renders a raw cell value for comparison or export. nil becomes
// the empty string; floats drop their trailing zeros so the code 2330
// delivered as a JSON number round-trips to "2330".
func AsString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ParseFloat parses a raw cell value as a float64. Textual values may carry
// thousands separators and percent signs ("1,234.5%" parses to 1234.5).
func ParseFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		s := strings.TrimSpace(val)
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, "%", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
