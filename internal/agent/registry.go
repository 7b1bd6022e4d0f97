// Package agent defines the collaborator contracts the workflow core calls
// for each pipeline stage, plus local deterministic and mock implementations.
// The core never depends on how a stage computes its result, only on these
// interfaces.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/giuliaserra/aria/internal/dataset"
	"github.com/giuliaserra/aria/internal/history"
	"github.com/giuliaserra/aria/internal/validate"
)

// CleaningOptions selects what the cleaning stage should do.
type CleaningOptions struct {
	CleanMissing      bool     `json:"clean_missing"`
	MissingStrategy   string   `json:"missing_strategy"`
	MissingColumns    []string `json:"missing_columns"`
	CleanDuplicates   bool     `json:"clean_duplicates"`
	DuplicateStrategy string   `json:"duplicate_strategy"`
}

// UploadOutput is a parsed working dataset plus a user-facing notice.
type UploadOutput struct {
	Dataset *dataset.Dataset
	Message string
}

// CleaningOutput is the cleaned dataset plus what was done to it.
type CleaningOutput struct {
	Dataset           *dataset.Dataset
	RowsBefore        int
	RowsAfter         int
	MissingFilled     int
	DuplicatesRemoved int
	Actions           []string
	Message           string
}

// QueryOutput is a raw query result value plus its explanation.
type QueryOutput struct {
	Value       history.QueryValue
	Explanation string
}

// ChartRequest describes one visualization invocation. Auto lets the agent
// choose chart types and columns; otherwise Type and XColumn are required.
type ChartRequest struct {
	Auto    bool
	Type    string
	XColumn string
	YColumn string
}

// Chart is one generated chart descriptor.
type Chart struct {
	Title   string
	Type    string
	XColumn string
	YColumn string
	Figure  history.Figure
}

// ChartOutput carries the charts produced by one visualization call.
type ChartOutput struct {
	Charts  []Chart
	Message string
}

// ReportInput is the accumulated history snapshot a report is built from.
type ReportInput struct {
	Filename           string
	Rows               int
	Columns            int
	ColumnNames        []string
	CleaningOperations int
	QueriesExecuted    int
	ChartsGenerated    int
	Insights           []string
	Warnings           []string
}

// ReportOutput names the generated artifact.
type ReportOutput struct {
	Path    string
	Message string
}

// Uploader parses raw upload bytes into a working dataset.
type Uploader interface {
	Execute(ctx context.Context, data []byte, filename string, size int64) (UploadOutput, error)
}

// Cleaner transforms a dataset. Needs is read-only and never mutates state.
type Cleaner interface {
	Execute(ctx context.Context, ds *dataset.Dataset, opts CleaningOptions) (CleaningOutput, error)
	Needs(ds *dataset.Dataset) validate.Issues
}

// Querier answers a natural-language question against a dataset.
type Querier interface {
	Execute(ctx context.Context, ds *dataset.Dataset, query string) (QueryOutput, error)
}

// Visualizer produces chart descriptors from a dataset.
type Visualizer interface {
	Execute(ctx context.Context, ds *dataset.Dataset, req ChartRequest) (ChartOutput, error)
}

// Reporter renders the report artifact.
type Reporter interface {
	Execute(ctx context.Context, in ReportInput) (ReportOutput, error)
}

// Registry bundles one agent per stage.
type Registry struct {
	Uploader   Uploader
	Cleaner    Cleaner
	Querier    Querier
	Visualizer Visualizer
	Reporter   Reporter
}

// Config controls registry construction.
type Config struct {
	Mode       string
	ReportsDir string
}

// NewRegistry builds the agent set for a mode. "local" runs deterministic
// in-process agents; "mock" returns canned results for tests and demos.
func NewRegistry(cfg Config) (Registry, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "local"
	}
	switch mode {
	case "local":
		return Registry{
			Uploader:   NewLocalUploader(),
			Cleaner:    NewLocalCleaner(),
			Querier:    NewLocalQuerier(),
			Visualizer: NewLocalVisualizer(),
			Reporter:   NewLocalReporter(cfg.ReportsDir),
		}, nil
	case "mock":
		return Registry{
			Uploader:   NewMockUploader(),
			Cleaner:    NewMockCleaner(),
			Querier:    NewMockQuerier(),
			Visualizer: NewMockVisualizer(),
			Reporter:   NewMockReporter(),
		}, nil
	default:
		return Registry{}, fmt.Errorf("unsupported agent mode %q (expected local|mock)", cfg.Mode)
	}
}
