package agent

import (
	"context"
	"fmt"

	"github.com/giuliaserra/aria/internal/dataset"
	"github.com/giuliaserra/aria/internal/history"
	"github.com/giuliaserra/aria/internal/validate"
)

// Mock agents return deterministic results with no I/O, for tests and demos.

type MockUploader struct{}

func NewMockUploader() *MockUploader { return &MockUploader{} }

func (u *MockUploader) Execute(ctx context.Context, _ []byte, filename string, _ int64) (UploadOutput, error) {
	if err := ctx.Err(); err != nil {
		return UploadOutput{}, err
	}
	ds, err := dataset.New(
		[]string{"city", "revenue"},
		[][]any{{"rome", 10.0}, {"milan", 12.0}, {"turin", 8.0}},
	)
	if err != nil {
		return UploadOutput{}, err
	}
	return UploadOutput{
		Dataset: ds,
		Message: fmt.Sprintf("Loaded mock dataset for %s", filename),
	}, nil
}

type MockCleaner struct{}

func NewMockCleaner() *MockCleaner { return &MockCleaner{} }

func (c *MockCleaner) Needs(ds *dataset.Dataset) validate.Issues {
	return validate.DetectIssues(ds)
}

func (c *MockCleaner) Execute(ctx context.Context, ds *dataset.Dataset, _ CleaningOptions) (CleaningOutput, error) {
	if err := ctx.Err(); err != nil {
		return CleaningOutput{}, err
	}
	return CleaningOutput{
		Dataset:    ds.Clone(),
		RowsBefore: ds.NumRows(),
		RowsAfter:  ds.NumRows(),
		Actions:    []string{"mock cleaning pass"},
		Message:    "Mock cleaning complete",
	}, nil
}

type MockQuerier struct{}

func NewMockQuerier() *MockQuerier { return &MockQuerier{} }

func (q *MockQuerier) Execute(ctx context.Context, _ *dataset.Dataset, query string) (QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return QueryOutput{}, err
	}
	return QueryOutput{
		Value:       history.Text{Value: fmt.Sprintf("mock answer for: %s", query)},
		Explanation: "Mock query agent echoes the question.",
	}, nil
}

type MockVisualizer struct{}

func NewMockVisualizer() *MockVisualizer { return &MockVisualizer{} }

func (v *MockVisualizer) Execute(ctx context.Context, _ *dataset.Dataset, req ChartRequest) (ChartOutput, error) {
	if err := ctx.Err(); err != nil {
		return ChartOutput{}, err
	}
	chartType := req.Type
	if req.Auto || chartType == "" {
		chartType = "bar"
	}
	return ChartOutput{
		Charts: []Chart{{
			Title:   "Mock chart",
			Type:    chartType,
			XColumn: req.XColumn,
			YColumn: req.YColumn,
			Figure: history.Figure{
				Data:   []map[string]any{{"type": chartType, "x": []string{"a", "b"}, "y": []float64{1, 2}}},
				Layout: map[string]any{"title": "Mock chart"},
			},
		}},
		Message: "Generated 1 mock chart",
	}, nil
}

type MockReporter struct{}

func NewMockReporter() *MockReporter { return &MockReporter{} }

func (r *MockReporter) Execute(ctx context.Context, _ ReportInput) (ReportOutput, error) {
	if err := ctx.Err(); err != nil {
		return ReportOutput{}, err
	}
	return ReportOutput{Path: "mock_report.txt", Message: "Mock report generated"}, nil
}
