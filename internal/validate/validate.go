package validate

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/giuliaserra/aria/internal/dataset"
)

const (
	minQueryLen = 3
	maxQueryLen = 500

	// Unique-value warnings only fire once a dataset is large enough for
	// full-cardinality columns to plausibly be identifiers.
	idColumnRowThreshold = 100
)

// dangerousQueryTokens is a defense-in-depth heuristic, not a sandbox. The
// query agent still has to isolate whatever it executes.
var dangerousQueryTokens = []string{
	"drop table", "delete from", "truncate",
	"insert into", "update set", "exec",
	"system", "os.", "eval(", "exec(",
}

// FileExtension checks the filename suffix against an allow-list,
// case-insensitively.
func FileExtension(filename string, allowed []string) (bool, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return true, "Valid file extension"
		}
	}
	return false, fmt.Sprintf("Invalid file type. Allowed: %s", strings.Join(allowed, ", "))
}

// FileSize checks an upload's byte length against a megabyte ceiling.
func FileSize(sizeBytes int64, maxSizeMB int) (bool, string) {
	sizeMB := float64(sizeBytes) / (1024 * 1024)
	if sizeMB > float64(maxSizeMB) {
		return false, fmt.Sprintf("File too large (%.2f MB). Maximum: %d MB", sizeMB, maxSizeMB)
	}
	return true, fmt.Sprintf("File size OK (%.2f MB)", sizeMB)
}

// Dataset checks basic structural sanity of a candidate working dataset.
func Dataset(ds *dataset.Dataset) (bool, string) {
	if ds == nil {
		return false, "Dataset is nil"
	}
	if ds.NumCols() == 0 {
		return false, "No columns found"
	}
	if ds.NumRows() == 0 {
		return false, "No rows found"
	}
	return true, "Dataset is valid"
}

// QueryText checks the trimmed length of a natural-language query. Bounds
// count characters, not bytes, so multibyte scripts get the same limits.
func QueryText(query string) (bool, string) {
	q := strings.TrimSpace(query)
	if q == "" {
		return false, "Query cannot be empty"
	}
	n := utf8.RuneCountInString(q)
	if n < minQueryLen {
		return false, fmt.Sprintf("Query too short (minimum %d characters)", minQueryLen)
	}
	if n > maxQueryLen {
		return false, fmt.Sprintf("Query too long (maximum %d characters)", maxQueryLen)
	}
	return true, "Valid query"
}

// QuerySafety scans for known-dangerous substrings, naming the first match.
func QuerySafety(query string) (bool, string) {
	lower := strings.ToLower(query)
	for _, token := range dangerousQueryTokens {
		if strings.Contains(lower, token) {
			return false, fmt.Sprintf("Query contains potentially dangerous operation: %q", token)
		}
	}
	return true, "Query is safe"
}

// ColumnExists checks that a column is present, listing the available ones
// when it is not.
func ColumnExists(ds *dataset.Dataset, column string) (bool, string) {
	if ds == nil || !ds.HasColumn(column) {
		var available []string
		if ds != nil {
			available = ds.Columns()
		}
		return false, fmt.Sprintf("Column %q not found. Available: %s", column, strings.Join(available, ", "))
	}
	return true, "Column exists"
}

// NumericColumn checks that a column holds only numeric (or missing) cells.
func NumericColumn(ds *dataset.Dataset, column string) (bool, string) {
	if ok, msg := ColumnExists(ds, column); !ok {
		return false, msg
	}
	if _, ok := ds.Numeric(column); !ok {
		return false, fmt.Sprintf("Column %q is not numeric", column)
	}
	return true, "Column is numeric"
}

// CategoricalColumn checks that a column's cardinality is low enough for
// grouped analysis.
func CategoricalColumn(ds *dataset.Dataset, column string, maxUnique int) (bool, string) {
	if ok, msg := ColumnExists(ds, column); !ok {
		return false, msg
	}
	if maxUnique <= 0 {
		maxUnique = 50
	}
	unique := ds.UniqueCount(column)
	if unique > maxUnique {
		return false, fmt.Sprintf("Too many unique values (%d) for categorical analysis", unique)
	}
	return true, fmt.Sprintf("Valid categorical column (%d unique values)", unique)
}

// Issues is the structured data-quality report. It is diagnostic only and
// never gates a request.
type Issues struct {
	MissingValues map[string]int                `json:"missing_values"`
	Duplicates    int                           `json:"duplicates"`
	DataTypes     map[string]dataset.ColumnType `json:"data_types"`
	Warnings      []string                      `json:"warnings"`
}

// DetectIssues scans a dataset for common quality problems.
func DetectIssues(ds *dataset.Dataset) Issues {
	issues := Issues{
		MissingValues: map[string]int{},
		DataTypes:     map[string]dataset.ColumnType{},
		Warnings:      []string{},
	}
	if ds == nil {
		return issues
	}

	issues.MissingValues = ds.MissingCounts()
	issues.Duplicates = ds.DuplicateRows()
	issues.DataTypes = ds.ColumnTypes()

	if len(issues.MissingValues) > 0 {
		total := 0
		for _, n := range issues.MissingValues {
			total += n
		}
		issues.Warnings = append(issues.Warnings,
			fmt.Sprintf("Found %d missing values across %d columns", total, len(issues.MissingValues)))
	}
	if issues.Duplicates > 0 {
		issues.Warnings = append(issues.Warnings,
			fmt.Sprintf("Found %d duplicate rows", issues.Duplicates))
	}
	if ds.NumRows() > idColumnRowThreshold {
		for _, col := range ds.Columns() {
			if ds.UniqueCount(col) == ds.NumRows() {
				issues.Warnings = append(issues.Warnings,
					fmt.Sprintf("Column %q has unique values (possible ID field)", col))
			}
		}
	}
	return issues
}
