package agent

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/giuliaserra/aria/internal/dataset"
	"github.com/giuliaserra/aria/internal/history"
	"github.com/giuliaserra/aria/internal/validate"
)

// LocalUploader parses delimited text uploads into a dataset. Spreadsheet
// formats are accepted at the validation layer but need an external agent.
type LocalUploader struct{}

func NewLocalUploader() *LocalUploader { return &LocalUploader{} }

func (u *LocalUploader) Execute(ctx context.Context, data []byte, filename string, size int64) (UploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return UploadOutput{}, err
	}

	var comma rune
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		comma = ','
	case ".tsv":
		comma = '\t'
	default:
		return UploadOutput{}, fmt.Errorf("no local parser for %s files", filepath.Ext(filename))
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return UploadOutput{}, fmt.Errorf("parse %s: %w", filename, err)
	}
	if len(records) < 2 {
		return UploadOutput{}, fmt.Errorf("file %s has no data rows", filename)
	}

	columns := records[0]
	rows := make([][]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		cells := make([]any, len(columns))
		for i := range columns {
			if i < len(rec) {
				cells[i] = parseCell(rec[i])
			}
		}
		rows = append(rows, cells)
	}

	ds, err := dataset.New(columns, rows)
	if err != nil {
		return UploadOutput{}, err
	}
	return UploadOutput{
		Dataset: ds,
		Message: fmt.Sprintf("Loaded %d rows and %d columns from %s", ds.NumRows(), ds.NumCols(), filename),
	}, nil
}

func parseCell(raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}

// LocalCleaner applies missing-value and duplicate-row strategies.
type LocalCleaner struct{}

func NewLocalCleaner() *LocalCleaner { return &LocalCleaner{} }

func (c *LocalCleaner) Needs(ds *dataset.Dataset) validate.Issues {
	return validate.DetectIssues(ds)
}

func (c *LocalCleaner) Execute(ctx context.Context, ds *dataset.Dataset, opts CleaningOptions) (CleaningOutput, error) {
	if err := ctx.Err(); err != nil {
		return CleaningOutput{}, err
	}

	out := CleaningOutput{RowsBefore: ds.NumRows()}
	columns := ds.Columns()
	grid := make([][]any, ds.NumRows())
	for i := range grid {
		row := make([]any, len(columns))
		copy(row, ds.Row(i))
		grid[i] = row
	}

	if opts.CleanMissing {
		targets := opts.MissingColumns
		if len(targets) == 0 {
			targets = columns
		}
		strategy := strings.ToLower(strings.TrimSpace(opts.MissingStrategy))
		if strategy == "" {
			strategy = "drop"
		}
		filled, dropped, err := applyMissingStrategy(grid, columns, targets, strategy)
		if err != nil {
			return CleaningOutput{}, err
		}
		grid = dropped
		out.MissingFilled = filled
		out.Actions = append(out.Actions,
			fmt.Sprintf("missing values handled with strategy %q on %d columns", strategy, len(targets)))
	}

	if opts.CleanDuplicates {
		strategy := strings.ToLower(strings.TrimSpace(opts.DuplicateStrategy))
		if strategy == "" {
			strategy = "drop"
		}
		before := len(grid)
		grid = applyDuplicateStrategy(grid, strategy)
		out.DuplicatesRemoved = before - len(grid)
		if strategy != "keep" {
			out.Actions = append(out.Actions,
				fmt.Sprintf("removed %d duplicate rows (strategy %q)", out.DuplicatesRemoved, strategy))
		}
	}

	cleaned, err := dataset.New(columns, grid)
	if err != nil {
		return CleaningOutput{}, err
	}
	out.Dataset = cleaned
	out.RowsAfter = cleaned.NumRows()
	out.Message = fmt.Sprintf("Cleaning complete: %d rows before, %d after", out.RowsBefore, out.RowsAfter)
	return out, nil
}

func applyMissingStrategy(grid [][]any, columns, targets []string, strategy string) (int, [][]any, error) {
	idx := make([]int, 0, len(targets))
	for _, t := range targets {
		for i, c := range columns {
			if c == t {
				idx = append(idx, i)
			}
		}
	}

	filled := 0
	switch strategy {
	case "drop":
		kept := grid[:0]
		for _, row := range grid {
			missing := false
			for _, i := range idx {
				if row[i] == nil {
					missing = true
					break
				}
			}
			if !missing {
				kept = append(kept, row)
			}
		}
		return 0, kept, nil
	case "mean", "median":
		for _, i := range idx {
			vals := numericColumnValues(grid, i)
			if len(vals) == 0 {
				continue
			}
			fill := mean(vals)
			if strategy == "median" {
				fill = median(vals)
			}
			for _, row := range grid {
				if row[i] == nil {
					row[i] = fill
					filled++
				}
			}
		}
		return filled, grid, nil
	case "mode":
		for _, i := range idx {
			fill, ok := modeValue(grid, i)
			if !ok {
				continue
			}
			for _, row := range grid {
				if row[i] == nil {
					row[i] = fill
					filled++
				}
			}
		}
		return filled, grid, nil
	case "ffill", "bfill":
		for _, i := range idx {
			filled += propagate(grid, i, strategy == "bfill")
		}
		return filled, grid, nil
	default:
		return 0, nil, fmt.Errorf("unknown missing-value strategy %q", strategy)
	}
}

func applyDuplicateStrategy(grid [][]any, strategy string) [][]any {
	switch strategy {
	case "drop", "first":
		seen := make(map[string]struct{}, len(grid))
		kept := make([][]any, 0, len(grid))
		for _, row := range grid {
			key := gridRowKey(row)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, row)
		}
		return kept
	case "last":
		seen := make(map[string]struct{}, len(grid))
		kept := make([][]any, 0, len(grid))
		for i := len(grid) - 1; i >= 0; i-- {
			key := gridRowKey(grid[i])
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, grid[i])
		}
		for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
			kept[l], kept[r] = kept[r], kept[l]
		}
		return kept
	default: // "keep"
		return grid
	}
}

func gridRowKey(row []any) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			parts[i] = "\x00"
			continue
		}
		parts[i] = dataset.CellString(v)
	}
	return strings.Join(parts, "\x1f")
}

func numericColumnValues(grid [][]any, idx int) []float64 {
	vals := make([]float64, 0, len(grid))
	for _, row := range grid {
		if f, ok := row[idx].(float64); ok {
			vals = append(vals, f)
		}
	}
	return vals
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func sum(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func modeValue(grid [][]any, idx int) (any, bool) {
	counts := make(map[string]int)
	values := make(map[string]any)
	for _, row := range grid {
		if row[idx] == nil {
			continue
		}
		key := dataset.CellString(row[idx])
		counts[key]++
		values[key] = row[idx]
	}
	best, bestCount := "", 0
	for key, n := range counts {
		if n > bestCount || (n == bestCount && key < best) {
			best, bestCount = key, n
		}
	}
	if bestCount == 0 {
		return nil, false
	}
	return values[best], true
}

func propagate(grid [][]any, idx int, backward bool) int {
	filled := 0
	if backward {
		var carry any
		for i := len(grid) - 1; i >= 0; i-- {
			if grid[i][idx] == nil {
				if carry != nil {
					grid[i][idx] = carry
					filled++
				}
				continue
			}
			carry = grid[i][idx]
		}
		return filled
	}
	var carry any
	for _, row := range grid {
		if row[idx] == nil {
			if carry != nil {
				row[idx] = carry
				filled++
			}
			continue
		}
		carry = row[idx]
	}
	return filled
}

// LocalQuerier answers a small set of aggregate question shapes without any
// model in the loop.
type LocalQuerier struct{}

func NewLocalQuerier() *LocalQuerier { return &LocalQuerier{} }

func (q *LocalQuerier) Execute(ctx context.Context, ds *dataset.Dataset, query string) (QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return QueryOutput{}, err
	}

	lower := strings.ToLower(query)

	if strings.Contains(lower, "how many rows") || strings.Contains(lower, "row count") ||
		strings.Contains(lower, "count rows") || strings.Contains(lower, "number of rows") {
		return QueryOutput{
			Value:       history.Scalar{Value: float64(ds.NumRows())},
			Explanation: "Counted the rows of the working dataset.",
		}, nil
	}

	if strings.Contains(lower, "column") && (strings.Contains(lower, "what") || strings.Contains(lower, "list")) {
		return QueryOutput{
			Value:       history.Text{Value: strings.Join(ds.Columns(), ", ")},
			Explanation: "Listed the column names of the working dataset.",
		}, nil
	}

	for _, agg := range []struct {
		keywords []string
		name     string
		fn       func([]float64) float64
	}{
		{[]string{"average", "mean"}, "mean", mean},
		{[]string{"sum", "total"}, "sum", sum},
		{[]string{"median"}, "median", median},
		{[]string{"minimum", "min "}, "min", minOf},
		{[]string{"maximum", "max "}, "max", maxOf},
	} {
		if !containsAny(lower, agg.keywords) {
			continue
		}
		col := matchColumn(lower, ds)
		if col == "" {
			continue
		}
		vals, ok := ds.Numeric(col)
		if !ok || len(vals) == 0 {
			return QueryOutput{}, fmt.Errorf("column %q is not numeric", col)
		}
		return QueryOutput{
			Value:       history.Scalar{Value: agg.fn(vals)},
			Explanation: fmt.Sprintf("Computed the %s of column %q over %d values.", agg.name, col, len(vals)),
		}, nil
	}

	if strings.Contains(lower, "missing") {
		if col := matchColumn(lower, ds); col != "" {
			idx := ds.ColumnIndex(col)
			sub := ds.Filter(func(row []any) bool { return row[idx] == nil })
			return QueryOutput{
				Value:       history.Dataframe{Data: sub},
				Explanation: fmt.Sprintf("Returned the %d rows with a missing %q value.", sub.NumRows(), col),
			}, nil
		}
	}

	if containsAny(lower, []string{"show", "values of"}) {
		if col := matchColumn(lower, ds); col != "" {
			values, _ := ds.Column(col)
			if len(values) > 10 {
				values = values[:10]
			}
			return QueryOutput{
				Value:       history.Series{Name: col, Values: values},
				Explanation: fmt.Sprintf("Returned the first %d values of column %q.", len(values), col),
			}, nil
		}
	}

	head := ds.Head(5)
	return QueryOutput{
		Value:       history.Dataframe{Data: head},
		Explanation: "No aggregate matched; returning the first rows of the dataset.",
	}, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// matchColumn finds the longest column name mentioned in the query.
func matchColumn(lowerQuery string, ds *dataset.Dataset) string {
	best := ""
	for _, col := range ds.Columns() {
		if strings.Contains(lowerQuery, strings.ToLower(col)) && len(col) > len(best) {
			best = col
		}
	}
	return best
}

// LocalVisualizer builds plotly-shaped figures straight from column values.
type LocalVisualizer struct{}

func NewLocalVisualizer() *LocalVisualizer { return &LocalVisualizer{} }

const maxAutoCharts = 3

func (v *LocalVisualizer) Execute(ctx context.Context, ds *dataset.Dataset, req ChartRequest) (ChartOutput, error) {
	if err := ctx.Err(); err != nil {
		return ChartOutput{}, err
	}
	if req.Auto {
		charts := v.autoCharts(ds)
		if len(charts) == 0 {
			return ChartOutput{}, fmt.Errorf("no suitable columns for automatic charts")
		}
		return ChartOutput{
			Charts:  charts,
			Message: fmt.Sprintf("Generated %d charts automatically", len(charts)),
		}, nil
	}

	chart, err := v.customChart(ds, req)
	if err != nil {
		return ChartOutput{}, err
	}
	return ChartOutput{Charts: []Chart{chart}, Message: fmt.Sprintf("Generated %s chart", chart.Type)}, nil
}

func (v *LocalVisualizer) customChart(ds *dataset.Dataset, req ChartRequest) (Chart, error) {
	if ok, msg := validate.ColumnExists(ds, req.XColumn); !ok {
		return Chart{}, fmt.Errorf("%s", msg)
	}
	if req.YColumn != "" {
		if ok, msg := validate.NumericColumn(ds, req.YColumn); !ok {
			return Chart{}, fmt.Errorf("%s", msg)
		}
	}

	chartType := strings.ToLower(strings.TrimSpace(req.Type))
	switch chartType {
	case "histogram", "box":
		if ok, msg := validate.NumericColumn(ds, req.XColumn); !ok {
			return Chart{}, fmt.Errorf("%s", msg)
		}
		vals, _ := ds.Numeric(req.XColumn)
		return Chart{
			Title:   fmt.Sprintf("Distribution of %s", req.XColumn),
			Type:    chartType,
			XColumn: req.XColumn,
			Figure: history.Figure{
				Data:   []map[string]any{{"type": chartType, "x": vals, "name": req.XColumn}},
				Layout: map[string]any{"title": fmt.Sprintf("Distribution of %s", req.XColumn)},
			},
		}, nil
	case "pie":
		labels, counts := ds.TopValues(req.XColumn, 12)
		return Chart{
			Title:   fmt.Sprintf("Share of %s", req.XColumn),
			Type:    chartType,
			XColumn: req.XColumn,
			Figure: history.Figure{
				Data:   []map[string]any{{"type": "pie", "labels": labels, "values": counts}},
				Layout: map[string]any{"title": fmt.Sprintf("Share of %s", req.XColumn)},
			},
		}, nil
	case "bar":
		if req.YColumn == "" {
			labels, counts := ds.TopValues(req.XColumn, 20)
			return Chart{
				Title:   fmt.Sprintf("Count by %s", req.XColumn),
				Type:    chartType,
				XColumn: req.XColumn,
				Figure: history.Figure{
					Data:   []map[string]any{{"type": "bar", "x": labels, "y": counts}},
					Layout: map[string]any{"title": fmt.Sprintf("Count by %s", req.XColumn)},
				},
			}, nil
		}
		fallthrough
	case "line", "scatter":
		if req.YColumn == "" {
			return Chart{}, fmt.Errorf("chart type %q requires a Y column", chartType)
		}
		x, _ := ds.Column(req.XColumn)
		y, _ := ds.Column(req.YColumn)
		mode := chartType
		if chartType == "line" || chartType == "scatter" {
			mode = "scatter"
		}
		trace := map[string]any{"type": mode, "x": x, "y": y}
		if chartType == "line" {
			trace["mode"] = "lines"
		}
		title := fmt.Sprintf("%s by %s", req.YColumn, req.XColumn)
		return Chart{
			Title:   title,
			Type:    chartType,
			XColumn: req.XColumn,
			YColumn: req.YColumn,
			Figure: history.Figure{
				Data:   []map[string]any{trace},
				Layout: map[string]any{"title": title},
			},
		}, nil
	default:
		return Chart{}, fmt.Errorf("unsupported chart type %q", req.Type)
	}
}

func (v *LocalVisualizer) autoCharts(ds *dataset.Dataset) []Chart {
	types := ds.ColumnTypes()
	var numeric, categorical []string
	for _, col := range ds.Columns() {
		switch types[col] {
		case dataset.TypeNumeric:
			numeric = append(numeric, col)
		case dataset.TypeString:
			if ds.UniqueCount(col) <= 12 {
				categorical = append(categorical, col)
			}
		}
	}

	var charts []Chart
	if len(numeric) > 0 {
		if c, err := v.customChart(ds, ChartRequest{Type: "histogram", XColumn: numeric[0]}); err == nil {
			charts = append(charts, c)
		}
	}
	if len(categorical) > 0 && len(charts) < maxAutoCharts {
		if c, err := v.customChart(ds, ChartRequest{Type: "bar", XColumn: categorical[0]}); err == nil {
			charts = append(charts, c)
		}
	}
	if len(numeric) > 1 && len(charts) < maxAutoCharts {
		if c, err := v.customChart(ds, ChartRequest{Type: "scatter", XColumn: numeric[0], YColumn: numeric[1]}); err == nil {
			charts = append(charts, c)
		}
	}
	return charts
}

// LocalReporter writes a plain-text summary artifact. PDF rendering stays
// with external report agents.
type LocalReporter struct {
	dir string
}

func NewLocalReporter(dir string) *LocalReporter {
	if strings.TrimSpace(dir) == "" {
		dir = "outputs/reports"
	}
	return &LocalReporter{dir: dir}
}

func (r *LocalReporter) Execute(ctx context.Context, in ReportInput) (ReportOutput, error) {
	if err := ctx.Err(); err != nil {
		return ReportOutput{}, err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return ReportOutput{}, fmt.Errorf("create reports dir: %w", err)
	}

	name := fmt.Sprintf("analysis_report_%s.txt", time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(r.dir, name)

	var b strings.Builder
	b.WriteString("Business Data Analysis Report\n")
	b.WriteString(strings.Repeat("=", 29) + "\n\n")
	fmt.Fprintf(&b, "Source file: %s\n", in.Filename)
	fmt.Fprintf(&b, "Rows: %d\nColumns: %d (%s)\n", in.Rows, in.Columns, strings.Join(in.ColumnNames, ", "))
	fmt.Fprintf(&b, "Cleaning operations: %d\n", in.CleaningOperations)
	fmt.Fprintf(&b, "Queries executed: %d\n", in.QueriesExecuted)
	fmt.Fprintf(&b, "Charts generated: %d\n", in.ChartsGenerated)
	if len(in.Warnings) > 0 {
		b.WriteString("\nData quality warnings:\n")
		for _, w := range in.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	if len(in.Insights) > 0 {
		b.WriteString("\nInsights:\n")
		for _, i := range in.Insights {
			fmt.Fprintf(&b, "  - %s\n", i)
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return ReportOutput{}, fmt.Errorf("write report: %w", err)
	}
	return ReportOutput{Path: path, Message: "Report generated successfully"}, nil
}
