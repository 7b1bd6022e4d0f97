// Package workflow encodes the five-stage analytics pipeline: which stage is
// allowed to run against a session, how delegated agent calls are bounded,
// and how stage outcomes are committed into session state.
package workflow

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/giuliaserra/aria/internal/agent"
	"github.com/giuliaserra/aria/internal/archive"
	"github.com/giuliaserra/aria/internal/dataset"
	"github.com/giuliaserra/aria/internal/history"
	"github.com/giuliaserra/aria/internal/observability"
	"github.com/giuliaserra/aria/internal/session"
	"github.com/giuliaserra/aria/internal/validate"
)

// Stage names one step of the fixed pipeline.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageClean     Stage = "clean"
	StageQuery     Stage = "query"
	StageVisualize Stage = "visualize"
	StageReport    Stage = "report"
)

const previewRows = 10

// StageEvent notifies observers that one stage run finished.
type StageEvent struct {
	SessionID string    `json:"session_id"`
	Stage     Stage     `json:"stage"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Result is the uniform stage outcome. Exactly one payload field is set,
// matching the stage that produced it.
type Result struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Preview *dataset.Preview         `json:"preview,omitempty"`
	Summary *session.CleaningSummary `json:"summary,omitempty"`
	Query   *session.QueryResult     `json:"query,omitempty"`
	Charts  []session.ChartPayload   `json:"charts,omitempty"`
	Report  *session.ReportStatus    `json:"report,omitempty"`
}

// Options bounds stage runs.
type Options struct {
	AgentTimeout      time.Duration
	MaxUploadSizeMB   int
	AllowedExtensions []string
}

// Runner executes stages against sessions. Agent calls run outside the
// session lock; results are committed under it, atomically, only on success.
type Runner struct {
	agents  agent.Registry
	archive archive.Store
	metrics *observability.Metrics
	opts    Options

	mu     sync.RWMutex
	notify func(StageEvent)
}

func NewRunner(agents agent.Registry, store archive.Store, metrics *observability.Metrics, opts Options) *Runner {
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 30 * time.Second
	}
	if opts.MaxUploadSizeMB <= 0 {
		opts.MaxUploadSizeMB = 200
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = []string{".csv", ".xlsx", ".xls"}
	}
	return &Runner{agents: agents, archive: store, metrics: metrics, opts: opts}
}

// SetNotifier registers a hook invoked after every stage run, success or not.
func (r *Runner) SetNotifier(fn func(StageEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = fn
}

// AllowedExtensions exposes the upload allow-list for client hints.
func (r *Runner) AllowedExtensions() []string {
	out := make([]string, len(r.opts.AllowedExtensions))
	copy(out, r.opts.AllowedExtensions)
	return out
}

// Upload runs the upload stage: validate, delegate parsing, then commit the
// new working dataset and clear every downstream latest-result cache.
func (r *Runner) Upload(ctx context.Context, h *session.Handle, data []byte, filename string) (Result, error) {
	start := time.Now()

	if ok, msg := validate.FileExtension(filename, r.opts.AllowedExtensions); !ok {
		return r.fail(ctx, h, StageUpload, start, failf(KindInvalidInput, "%s", msg))
	}
	if ok, msg := validate.FileSize(int64(len(data)), r.opts.MaxUploadSizeMB); !ok {
		return r.fail(ctx, h, StageUpload, start, failf(KindInvalidInput, "%s", msg))
	}

	var out agent.UploadOutput
	if err := r.callAgent(ctx, StageUpload, func(actx context.Context) error {
		var aerr error
		out, aerr = r.agents.Uploader.Execute(actx, data, filename, int64(len(data)))
		return aerr
	}); err != nil {
		return r.fail(ctx, h, StageUpload, start, err)
	}
	if ok, msg := validate.Dataset(out.Dataset); !ok {
		return r.fail(ctx, h, StageUpload, start, failf(KindAgentFailure, "upload agent returned an invalid dataset: %s", msg))
	}

	ds := out.Dataset
	preview := ds.HeadPreview(previewRows)
	info := &session.FileInfo{
		Filename:   filename,
		SizeBytes:  int64(len(data)),
		Rows:       ds.NumRows(),
		Columns:    ds.NumCols(),
		UploadedAt: time.Now().UTC(),
	}

	_ = h.Update(func(st *session.State) error {
		st.Raw = ds
		st.Cleaned = nil
		st.Current = ds
		st.AgentStatus[session.StatusInputComplete] = true
		st.AgentStatus[session.StatusCleaningComplete] = false
		st.AgentStatus[session.StatusNLQReady] = false
		st.FileInfo = info
		st.Preview = &preview
		st.Metadata["source_filename"] = filename
		// A new upload invalidates everything derived downstream; the
		// caches go in the same commit so a stale preview can never
		// outlive the dataset it summarized.
		st.CleaningSummary = nil
		st.LastQueryResult = nil
		st.ChartPayloads = nil
		st.ReportStatus = nil
		return nil
	})

	return r.succeed(ctx, h, StageUpload, start, Result{
		Success: true,
		Message: out.Message,
		Preview: &preview,
	})
}

// Clean runs the cleaning stage against the current working dataset.
func (r *Runner) Clean(ctx context.Context, h *session.Handle, opts agent.CleaningOptions) (Result, error) {
	start := time.Now()

	ds, err := r.currentDataset(h, StageClean)
	if err != nil {
		return r.fail(ctx, h, StageClean, start, err)
	}

	var out agent.CleaningOutput
	if err := r.callAgent(ctx, StageClean, func(actx context.Context) error {
		var aerr error
		out, aerr = r.agents.Cleaner.Execute(actx, ds, opts)
		return aerr
	}); err != nil {
		return r.fail(ctx, h, StageClean, start, err)
	}
	if ok, msg := validate.Dataset(out.Dataset); !ok {
		return r.fail(ctx, h, StageClean, start, failf(KindAgentFailure, "cleaning agent returned an invalid dataset: %s", msg))
	}

	summary := &session.CleaningSummary{
		RowsBefore:        out.RowsBefore,
		RowsAfter:         out.RowsAfter,
		MissingFilled:     out.MissingFilled,
		DuplicatesRemoved: out.DuplicatesRemoved,
		Actions:           out.Actions,
	}

	if err := r.commit(h, func(st *session.State) {
		st.Cleaned = out.Dataset
		st.Current = out.Dataset
		st.AgentStatus[session.StatusCleaningComplete] = true
		st.AddCleaningLog("clean", strings.Join(out.Actions, "; "))
		st.CleaningSummary = summary
	}); err != nil {
		return r.fail(ctx, h, StageClean, start, err)
	}

	return r.succeed(ctx, h, StageClean, start, Result{
		Success: true,
		Message: out.Message,
		Summary: summary,
	})
}

// CleaningNeeds is a read-only diagnostic pass; it records no history, emits
// no events, and never mutates the session.
func (r *Runner) CleaningNeeds(h *session.Handle) (validate.Issues, error) {
	ds, err := r.currentDataset(h, StageClean)
	if err != nil {
		return validate.Issues{}, err
	}
	return r.agents.Cleaner.Needs(ds), nil
}

// Query runs the query stage. Cleaning is deliberately not a prerequisite:
// querying raw, uncleaned data is permitted.
func (r *Runner) Query(ctx context.Context, h *session.Handle, query string) (Result, error) {
	start := time.Now()

	if ok, msg := validate.QueryText(query); !ok {
		return r.fail(ctx, h, StageQuery, start, failf(KindInvalidInput, "%s", msg))
	}
	if ok, msg := validate.QuerySafety(query); !ok {
		return r.fail(ctx, h, StageQuery, start, failf(KindInvalidInput, "%s", msg))
	}

	ds, err := r.currentDataset(h, StageQuery)
	if err != nil {
		return r.fail(ctx, h, StageQuery, start, err)
	}

	var out agent.QueryOutput
	if err := r.callAgent(ctx, StageQuery, func(actx context.Context) error {
		var aerr error
		out, aerr = r.agents.Querier.Execute(actx, ds, query)
		return aerr
	}); err != nil {
		return r.fail(ctx, h, StageQuery, start, err)
	}

	queryResult := &session.QueryResult{
		Query:       query,
		Explanation: out.Explanation,
		Summary:     history.Summarize(out.Value),
		ExecutedAt:  time.Now().UTC(),
	}

	if err := r.commit(h, func(st *session.State) {
		st.AddQuery(query, out.Value, out.Explanation)
		if out.Explanation != "" {
			st.AddInsight(out.Explanation, "query")
		}
		st.LastQueryResult = queryResult
		st.AgentStatus[session.StatusNLQReady] = true
	}); err != nil {
		return r.fail(ctx, h, StageQuery, start, err)
	}

	return r.succeed(ctx, h, StageQuery, start, Result{
		Success: true,
		Message: "Query executed successfully",
		Query:   queryResult,
	})
}

// Visualize runs the visualization stage in automatic or custom mode. New
// chart payloads are prepended so the most recent render first.
func (r *Runner) Visualize(ctx context.Context, h *session.Handle, req agent.ChartRequest) (Result, error) {
	start := time.Now()

	if !req.Auto {
		if strings.TrimSpace(req.Type) == "" || strings.TrimSpace(req.XColumn) == "" {
			return r.fail(ctx, h, StageVisualize, start,
				failf(KindInvalidInput, "Chart type and X column are required"))
		}
	}

	ds, err := r.currentDataset(h, StageVisualize)
	if err != nil {
		return r.fail(ctx, h, StageVisualize, start, err)
	}

	var out agent.ChartOutput
	if err := r.callAgent(ctx, StageVisualize, func(actx context.Context) error {
		var aerr error
		out, aerr = r.agents.Visualizer.Execute(actx, ds, req)
		return aerr
	}); err != nil {
		return r.fail(ctx, h, StageVisualize, start, err)
	}
	if len(out.Charts) == 0 {
		return r.fail(ctx, h, StageVisualize, start,
			failf(KindAgentFailure, "visualization agent produced no charts"))
	}

	now := time.Now().UTC()
	payloads := make([]session.ChartPayload, 0, len(out.Charts))
	for _, c := range out.Charts {
		payloads = append(payloads, session.ChartPayload{
			Title:     c.Title,
			Type:      c.Type,
			XColumn:   c.XColumn,
			YColumn:   c.YColumn,
			CreatedAt: now,
			Figure:    c.Figure,
		})
	}

	if err := r.commit(h, func(st *session.State) {
		st.ChartPayloads = append(append([]session.ChartPayload(nil), payloads...), st.ChartPayloads...)
		for _, c := range out.Charts {
			st.AddChart(c.Type, c.Title)
		}
	}); err != nil {
		return r.fail(ctx, h, StageVisualize, start, err)
	}

	return r.succeed(ctx, h, StageVisualize, start, Result{
		Success: true,
		Message: out.Message,
		Charts:  payloads,
	})
}

// Report runs the report stage over the accumulated session history.
func (r *Runner) Report(ctx context.Context, h *session.Handle) (Result, error) {
	start := time.Now()

	var in agent.ReportInput
	var ready bool
	h.View(func(st *session.State) {
		if st.Current == nil {
			return
		}
		ready = true
		in = agent.ReportInput{
			Rows:               st.Current.NumRows(),
			Columns:            st.Current.NumCols(),
			ColumnNames:        st.Current.Columns(),
			CleaningOperations: len(st.CleaningLog),
			QueriesExecuted:    len(st.QueryHistory),
			ChartsGenerated:    len(st.GeneratedCharts),
			Warnings:           validate.DetectIssues(st.Current).Warnings,
		}
		if st.FileInfo != nil {
			in.Filename = st.FileInfo.Filename
		}
		for _, ins := range st.Insights {
			in.Insights = append(in.Insights, ins.Text)
		}
	})
	if !ready {
		return r.fail(ctx, h, StageReport, start, prerequisiteError(StageReport))
	}

	var out agent.ReportOutput
	if err := r.callAgent(ctx, StageReport, func(actx context.Context) error {
		var aerr error
		out, aerr = r.agents.Reporter.Execute(actx, in)
		return aerr
	}); err != nil {
		return r.fail(ctx, h, StageReport, start, err)
	}

	status := &session.ReportStatus{
		Filename:    filepath.Base(out.Path),
		GeneratedAt: time.Now().UTC(),
	}

	if err := r.commit(h, func(st *session.State) {
		st.ReportStatus = status
	}); err != nil {
		return r.fail(ctx, h, StageReport, start, err)
	}

	return r.succeed(ctx, h, StageReport, start, Result{
		Success: true,
		Message: out.Message,
		Report:  status,
	})
}

// currentDataset snapshots the working dataset pointer, failing when the
// stage's prerequisite (a dataset exists) is not met. Datasets are immutable,
// so the pointer stays valid outside the lock.
func (r *Runner) currentDataset(h *session.Handle, stage Stage) (*dataset.Dataset, error) {
	var ds *dataset.Dataset
	h.View(func(st *session.State) { ds = st.Current })
	if ds == nil {
		return nil, prerequisiteError(stage)
	}
	return ds, nil
}

func prerequisiteError(stage Stage) *Error {
	return failf(KindPrerequisiteNotMet, "stage %q requires an uploaded dataset", stage)
}

// commit applies a stage's mutations, re-checking inside the lock that the
// session was not reset while the agent was running.
func (r *Runner) commit(h *session.Handle, apply func(*session.State)) error {
	return h.Update(func(st *session.State) error {
		if st.Current == nil {
			return failf(KindPrerequisiteNotMet, "session was reset while the stage was running")
		}
		apply(st)
		return nil
	})
}

// callAgent bounds one delegated agent call with the configured timeout.
func (r *Runner) callAgent(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	actx, cancel := context.WithTimeout(ctx, r.opts.AgentTimeout)
	defer cancel()

	err := fn(actx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failf(KindTimeout, "%s agent timed out after %s", stage, r.opts.AgentTimeout)
	}
	return wrap(KindAgentFailure, err.Error(), err)
}

func (r *Runner) succeed(ctx context.Context, h *session.Handle, stage Stage, start time.Time, res Result) (Result, error) {
	r.record(ctx, h.ID(), stage, true, res.Message, start)
	return res, nil
}

func (r *Runner) fail(ctx context.Context, h *session.Handle, stage Stage, start time.Time, err error) (Result, error) {
	r.record(ctx, h.ID(), stage, false, MessageOf(err), start)
	return Result{}, err
}

func (r *Runner) record(ctx context.Context, sessionID string, stage Stage, success bool, message string, start time.Time) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	if r.metrics != nil {
		r.metrics.ObserveStage(string(stage), outcome, time.Since(start))
	}
	if r.archive != nil {
		event := archive.StageEvent{
			SessionID: sessionID,
			Stage:     string(stage),
			Success:   success,
			Message:   message,
			CreatedAt: time.Now().UTC(),
		}
		if err := r.archive.SaveEvent(ctx, event); err != nil {
			log.Printf("archive stage event failed: %v", err)
		}
	}

	r.mu.RLock()
	notify := r.notify
	r.mu.RUnlock()
	if notify != nil {
		notify(StageEvent{
			SessionID: sessionID,
			Stage:     stage,
			Success:   success,
			Message:   message,
			Timestamp: time.Now().UTC(),
		})
	}
}
