package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/giuliaserra/aria/internal/agent"
	"github.com/giuliaserra/aria/internal/dataset"
	"github.com/giuliaserra/aria/internal/history"
	"github.com/giuliaserra/aria/internal/session"
)

const sampleCSV = "city,revenue\nRome,120.5\nMilan,98.2\nTurin,77.0\n"

func newTestRunner(t *testing.T, mode string) *Runner {
	t.Helper()
	reg, err := agent.NewRegistry(agent.Config{Mode: mode, ReportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return NewRunner(reg, nil, nil, Options{AgentTimeout: 5 * time.Second})
}

func newSessionHandle(t *testing.T) *session.Handle {
	t.Helper()
	store := session.NewStore(0)
	id := store.Create()
	h, err := store.Resolve(id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return h
}

func TestCleanBeforeUploadIsRejected(t *testing.T) {
	r := newTestRunner(t, "local")
	h := newSessionHandle(t)

	_, err := r.Clean(context.Background(), h, agent.CleaningOptions{CleanMissing: true, MissingStrategy: "mean"})
	if KindOf(err) != KindPrerequisiteNotMet {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindPrerequisiteNotMet)
	}
	h.View(func(st *session.State) {
		if len(st.CleaningLog) != 0 || st.CleaningSummary != nil {
			t.Fatal("failed stage mutated session state")
		}
	})
}

func TestUploadRejectsBadInput(t *testing.T) {
	r := NewRunner(mustRegistry(t, "local"), nil, nil, Options{MaxUploadSizeMB: 1})
	h := newSessionHandle(t)

	if _, err := r.Upload(context.Background(), h, []byte(sampleCSV), "data.parquet"); KindOf(err) != KindInvalidInput {
		t.Fatalf("extension: kind = %q, want %q", KindOf(err), KindInvalidInput)
	}
	big := make([]byte, 1<<20+1)
	if _, err := r.Upload(context.Background(), h, big, "data.csv"); KindOf(err) != KindInvalidInput {
		t.Fatalf("size: kind = %q, want %q", KindOf(err), KindInvalidInput)
	}
	h.View(func(st *session.State) {
		if st.HasData() {
			t.Fatal("rejected upload left a dataset behind")
		}
	})
}

func TestUploadThenQueryWithoutCleaning(t *testing.T) {
	r := newTestRunner(t, "local")
	h := newSessionHandle(t)

	up, err := r.Upload(context.Background(), h, []byte(sampleCSV), "sales.csv")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if up.Preview == nil || up.Preview.TotalRows != 3 {
		t.Fatalf("preview = %+v, want 3 rows", up.Preview)
	}

	res, err := r.Query(context.Background(), h, "how many rows are there?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Query == nil || res.Query.Summary.Type != history.TypeScalar {
		t.Fatalf("query result = %+v, want scalar summary", res.Query)
	}
	h.View(func(st *session.State) {
		if !st.AgentStatus[session.StatusInputComplete] || !st.AgentStatus[session.StatusNLQReady] {
			t.Fatalf("flags = %v", st.AgentStatus)
		}
		if st.AgentStatus[session.StatusCleaningComplete] {
			t.Fatal("cleaning flag set without a clean run")
		}
		if len(st.QueryHistory) != 1 {
			t.Fatalf("history length = %d, want 1", len(st.QueryHistory))
		}
		if len(st.Insights) != 1 || st.Insights[0].Category != "query" {
			t.Fatalf("insights = %+v", st.Insights)
		}
	})
}

func TestReuploadClearsDownstreamCaches(t *testing.T) {
	r := newTestRunner(t, "local")
	h := newSessionHandle(t)
	ctx := context.Background()

	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := r.Clean(ctx, h, agent.CleaningOptions{CleanDuplicates: true, DuplicateStrategy: "first"}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := r.Query(ctx, h, "how many rows are there?"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if _, err := r.Visualize(ctx, h, agent.ChartRequest{Auto: true}); err != nil {
		t.Fatalf("Visualize: %v", err)
	}

	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales_v2.csv"); err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	h.View(func(st *session.State) {
		if st.Cleaned != nil {
			t.Fatal("cleaned dataset survived re-upload")
		}
		if st.CleaningSummary != nil || st.LastQueryResult != nil || st.ChartPayloads != nil || st.ReportStatus != nil {
			t.Fatal("latest-result caches survived re-upload")
		}
		if st.AgentStatus[session.StatusCleaningComplete] || st.AgentStatus[session.StatusNLQReady] {
			t.Fatalf("downstream flags survived re-upload: %v", st.AgentStatus)
		}
		// Append-only history is deliberately preserved across uploads.
		if len(st.QueryHistory) != 1 || len(st.CleaningLog) != 1 {
			t.Fatalf("append-only history was truncated: %d queries, %d cleanings",
				len(st.QueryHistory), len(st.CleaningLog))
		}
	})
}

func TestAgentFailureLeavesStateUntouched(t *testing.T) {
	reg := mustRegistry(t, "mock")
	reg.Querier = failingQuerier{}
	r := NewRunner(reg, nil, nil, Options{})
	h := newSessionHandle(t)
	ctx := context.Background()

	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	_, err := r.Query(ctx, h, "what is the average revenue?")
	if KindOf(err) != KindAgentFailure {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindAgentFailure)
	}
	h.View(func(st *session.State) {
		if len(st.QueryHistory) != 0 || st.LastQueryResult != nil {
			t.Fatal("failed query was committed")
		}
		if st.AgentStatus[session.StatusNLQReady] {
			t.Fatal("nlq flag set by failed query")
		}
	})
}

func TestAgentTimeoutIsClassified(t *testing.T) {
	reg := mustRegistry(t, "mock")
	reg.Querier = blockingQuerier{}
	r := NewRunner(reg, nil, nil, Options{AgentTimeout: 20 * time.Millisecond})
	h := newSessionHandle(t)
	ctx := context.Background()

	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	_, err := r.Query(ctx, h, "what is the average revenue?")
	if KindOf(err) != KindTimeout {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindTimeout)
	}
}

func TestVisualizeMostRecentFirst(t *testing.T) {
	r := newTestRunner(t, "local")
	h := newSessionHandle(t)
	ctx := context.Background()

	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := r.Visualize(ctx, h, agent.ChartRequest{Type: "histogram", XColumn: "revenue"}); err != nil {
		t.Fatalf("first Visualize: %v", err)
	}
	if _, err := r.Visualize(ctx, h, agent.ChartRequest{Type: "bar", XColumn: "city", YColumn: "revenue"}); err != nil {
		t.Fatalf("second Visualize: %v", err)
	}
	h.View(func(st *session.State) {
		if len(st.ChartPayloads) != 2 {
			t.Fatalf("payloads = %d, want 2", len(st.ChartPayloads))
		}
		if st.ChartPayloads[0].Type != "bar" || st.ChartPayloads[1].Type != "histogram" {
			t.Fatalf("order = %q, %q; want most recent first",
				st.ChartPayloads[0].Type, st.ChartPayloads[1].Type)
		}
	})
}

func TestVisualizeCustomRequiresTypeAndColumn(t *testing.T) {
	r := newTestRunner(t, "local")
	h := newSessionHandle(t)
	ctx := context.Background()

	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	_, err := r.Visualize(ctx, h, agent.ChartRequest{Type: "histogram"})
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindInvalidInput)
	}
}

func TestReportRecordsStatus(t *testing.T) {
	r := newTestRunner(t, "local")
	h := newSessionHandle(t)
	ctx := context.Background()

	if _, err := r.Report(ctx, h); KindOf(err) != KindPrerequisiteNotMet {
		t.Fatalf("kind = %q, want %q", KindOf(err), KindPrerequisiteNotMet)
	}
	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	res, err := r.Report(ctx, h)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if res.Report == nil || !strings.HasPrefix(res.Report.Filename, "analysis_report_") {
		t.Fatalf("report = %+v", res.Report)
	}
	h.View(func(st *session.State) {
		if st.ReportStatus == nil || st.ReportStatus.Filename != res.Report.Filename {
			t.Fatalf("status = %+v, want %q", st.ReportStatus, res.Report.Filename)
		}
	})
}

func TestNotifierSeesEveryOutcome(t *testing.T) {
	r := newTestRunner(t, "mock")
	h := newSessionHandle(t)
	ctx := context.Background()

	var events []StageEvent
	r.SetNotifier(func(ev StageEvent) { events = append(events, ev) })

	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := r.Upload(ctx, h, []byte(sampleCSV), "sales.exe"); KindOf(err) != KindInvalidInput {
		t.Fatal("expected extension rejection")
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if !events[0].Success || events[0].Stage != StageUpload || events[0].SessionID != h.ID() {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Success || events[1].Message == "" {
		t.Fatalf("second event = %+v", events[1])
	}
}

func TestCleaningNeedsIsReadOnly(t *testing.T) {
	r := newTestRunner(t, "local")
	h := newSessionHandle(t)
	ctx := context.Background()

	csv := "id,score\n1,10\n2,\n2,\n"
	if _, err := r.Upload(ctx, h, []byte(csv), "scores.csv"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	issues, err := r.CleaningNeeds(h)
	if err != nil {
		t.Fatalf("CleaningNeeds: %v", err)
	}
	if issues.MissingValues["score"] != 2 {
		t.Fatalf("missing = %v", issues.MissingValues)
	}
	if issues.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", issues.Duplicates)
	}
	h.View(func(st *session.State) {
		if len(st.CleaningLog) != 0 {
			t.Fatal("diagnostic pass wrote to the cleaning log")
		}
	})
}

func mustRegistry(t *testing.T, mode string) agent.Registry {
	t.Helper()
	reg, err := agent.NewRegistry(agent.Config{Mode: mode, ReportsDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

type failingQuerier struct{}

func (failingQuerier) Execute(context.Context, *dataset.Dataset, string) (agent.QueryOutput, error) {
	return agent.QueryOutput{}, errors.New("model unavailable")
}

type blockingQuerier struct{}

func (blockingQuerier) Execute(ctx context.Context, _ *dataset.Dataset, _ string) (agent.QueryOutput, error) {
	<-ctx.Done()
	return agent.QueryOutput{}, ctx.Err()
}
