// Package history normalizes heterogeneous stage results into uniform,
// serializable summaries so agent-specific value shapes never cross the API
// boundary.
package history

import (
	"fmt"
	"time"

	"github.com/giuliaserra/aria/internal/dataset"
)

// SummaryType identifies query result summary variants.
type SummaryType string

const (
	TypeDataframe SummaryType = "dataframe"
	TypeSeries    SummaryType = "series"
	TypeScalar    SummaryType = "scalar"
	TypeText      SummaryType = "text"
)

// QueryValue is one variant of a query agent's raw result.
type QueryValue interface {
	queryValue()
}

// Dataframe is a full tabular result.
type Dataframe struct {
	Data *dataset.Dataset
}

// Series is a single named sequence of values.
type Series struct {
	Name   string
	Values []any
}

// Scalar is a single numeric result.
type Scalar struct {
	Value float64
}

// Text is the fallback variant for anything non-tabular and non-numeric.
type Text struct {
	Value string
}

func (Dataframe) queryValue() {}
func (Series) queryValue()    {}
func (Scalar) queryValue()    {}
func (Text) queryValue()      {}

// Summary is the client-facing shape of one query result.
type Summary struct {
	Type    SummaryType `json:"type"`
	Rows    int         `json:"rows,omitempty"`
	Columns []string    `json:"columns,omitempty"`
	Length  int         `json:"length,omitempty"`
	Name    string      `json:"name,omitempty"`
	Value   any         `json:"value,omitempty"`
}

// Summarize collapses a query value into its summary. Variants are checked
// tabular-first so a scalar can never be miscast as text.
func Summarize(v QueryValue) Summary {
	switch r := v.(type) {
	case Dataframe:
		s := Summary{Type: TypeDataframe}
		if r.Data != nil {
			s.Rows = r.Data.NumRows()
			s.Columns = r.Data.Columns()
		}
		return s
	case Series:
		return Summary{Type: TypeSeries, Length: len(r.Values), Name: r.Name}
	case Scalar:
		return Summary{Type: TypeScalar, Value: r.Value}
	case Text:
		return Summary{Type: TypeText, Value: r.Value}
	default:
		return Summary{Type: TypeText, Value: fmt.Sprintf("%v", v)}
	}
}

// Entry is one serialized query-history record.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	Query         string    `json:"query"`
	Explanation   string    `json:"explanation"`
	ResultSummary Summary   `json:"result_summary"`
}

// NewEntry builds the serialized form of one history record.
func NewEntry(ts time.Time, query, explanation string, result QueryValue) Entry {
	return Entry{
		Timestamp:     ts,
		Query:         query,
		Explanation:   explanation,
		ResultSummary: Summarize(result),
	}
}
