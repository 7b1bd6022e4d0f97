package dataset

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ColumnType is the inferred storage type of a column.
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeString  ColumnType = "string"
	TypeMixed   ColumnType = "mixed"
	TypeEmpty   ColumnType = "empty"
)

// Dataset is an in-memory tabular working dataset. Cells are float64 for
// numeric values, string otherwise, and nil when missing. Datasets are
// treated as immutable once built: transformations return a new Dataset.
type Dataset struct {
	columns []string
	rows    [][]any
}

// Preview is a client-facing excerpt of a dataset.
type Preview struct {
	Columns   []string   `json:"columns"`
	Rows      [][]string `json:"rows"`
	TotalRows int        `json:"total_rows"`
}

func New(columns []string, rows [][]any) (*Dataset, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return &Dataset{columns: columns, rows: rows}, nil
}

func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

func (d *Dataset) NumRows() int { return len(d.rows) }

func (d *Dataset) NumCols() int { return len(d.columns) }

// Row returns the cells of one row without copying. Callers must not mutate.
func (d *Dataset) Row(i int) []any { return d.rows[i] }

func (d *Dataset) ColumnIndex(name string) int {
	for i, c := range d.columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (d *Dataset) HasColumn(name string) bool { return d.ColumnIndex(name) >= 0 }

// Column returns a copy of one column's cells.
func (d *Dataset) Column(name string) ([]any, bool) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]any, len(d.rows))
	for i, row := range d.rows {
		out[i] = row[idx]
	}
	return out, true
}

// Numeric returns the non-missing numeric cells of a column, and whether the
// column only holds numeric (or missing) values.
func (d *Dataset) Numeric(name string) ([]float64, bool) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, 0, len(d.rows))
	for _, row := range d.rows {
		switch v := row[idx].(type) {
		case nil:
		case float64:
			out = append(out, v)
		default:
			return nil, false
		}
	}
	return out, true
}

// Clone deep-copies the dataset, including cell slices.
func (d *Dataset) Clone() *Dataset {
	rows := make([][]any, len(d.rows))
	for i, row := range d.rows {
		c := make([]any, len(row))
		copy(c, row)
		rows[i] = c
	}
	cols := make([]string, len(d.columns))
	copy(cols, d.columns)
	return &Dataset{columns: cols, rows: rows}
}

// ColumnTypes infers one type per column from its non-missing cells.
func (d *Dataset) ColumnTypes() map[string]ColumnType {
	types := make(map[string]ColumnType, len(d.columns))
	for idx, col := range d.columns {
		var numeric, str int
		for _, row := range d.rows {
			switch row[idx].(type) {
			case float64:
				numeric++
			case string:
				str++
			}
		}
		switch {
		case numeric == 0 && str == 0:
			types[col] = TypeEmpty
		case numeric > 0 && str > 0:
			types[col] = TypeMixed
		case numeric > 0:
			types[col] = TypeNumeric
		default:
			types[col] = TypeString
		}
	}
	return types
}

// MissingCounts reports, per column, how many cells are missing. Columns
// without missing cells are omitted.
func (d *Dataset) MissingCounts() map[string]int {
	counts := make(map[string]int)
	for idx, col := range d.columns {
		n := 0
		for _, row := range d.rows {
			if row[idx] == nil {
				n++
			}
		}
		if n > 0 {
			counts[col] = n
		}
	}
	return counts
}

// DuplicateRows counts rows that are exact repeats of an earlier row.
func (d *Dataset) DuplicateRows() int {
	seen := make(map[string]struct{}, len(d.rows))
	dupes := 0
	for _, row := range d.rows {
		key := rowKey(row)
		if _, ok := seen[key]; ok {
			dupes++
			continue
		}
		seen[key] = struct{}{}
	}
	return dupes
}

// UniqueCount counts distinct non-missing values in a column.
func (d *Dataset) UniqueCount(name string) int {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return 0
	}
	seen := make(map[string]struct{})
	for _, row := range d.rows {
		if row[idx] == nil {
			continue
		}
		seen[CellString(row[idx])] = struct{}{}
	}
	return len(seen)
}

// TopValues returns up to limit distinct string values of a column with their
// occurrence counts, most frequent first.
func (d *Dataset) TopValues(name string, limit int) ([]string, []float64) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, nil
	}
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, row := range d.rows {
		if row[idx] == nil {
			continue
		}
		key := CellString(row[idx])
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	values := make([]float64, len(order))
	for i, key := range order {
		values[i] = float64(counts[key])
	}
	return order, values
}

// HeadPreview renders the first n rows as strings for client display.
func (d *Dataset) HeadPreview(n int) Preview {
	if n <= 0 || n > len(d.rows) {
		n = len(d.rows)
	}
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		cells := make([]string, len(d.columns))
		for j, v := range d.rows[i] {
			cells[j] = CellString(v)
		}
		rows = append(rows, cells)
	}
	return Preview{Columns: d.Columns(), Rows: rows, TotalRows: len(d.rows)}
}

// Head returns a new dataset holding the first n rows.
func (d *Dataset) Head(n int) *Dataset {
	if n <= 0 || n > len(d.rows) {
		n = len(d.rows)
	}
	return &Dataset{columns: d.Columns(), rows: copyRows(d.rows[:n])}
}

// Filter returns a new dataset with the rows for which keep returns true.
func (d *Dataset) Filter(keep func(row []any) bool) *Dataset {
	rows := make([][]any, 0, len(d.rows))
	for _, row := range d.rows {
		if keep(row) {
			c := make([]any, len(row))
			copy(c, row)
			rows = append(rows, c)
		}
	}
	return &Dataset{columns: d.Columns(), rows: rows}
}

// CellString renders one cell for display. Missing cells render empty,
// integral floats without a decimal part.
func CellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case float64:
		if c == math.Trunc(c) && math.Abs(c) < 1e15 {
			return fmt.Sprintf("%.0f", c)
		}
		return fmt.Sprintf("%g", c)
	case string:
		return c
	default:
		return fmt.Sprintf("%v", c)
	}
}

func rowKey(row []any) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		if v == nil {
			b.WriteByte('\x00')
			continue
		}
		b.WriteString(CellString(v))
	}
	return b.String()
}

func copyRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		c := make([]any, len(row))
		copy(c, row)
		out[i] = c
	}
	return out
}
