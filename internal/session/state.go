package session

import (
	"time"

	"github.com/giuliaserra/aria/internal/dataset"
	"github.com/giuliaserra/aria/internal/history"
)

// Stage readiness flags recorded in State.AgentStatus.
const (
	StatusInputComplete    = "input_complete"
	StatusCleaningComplete = "cleaning_complete"
	StatusNLQReady         = "nlq_ready"
)

// FileInfo describes the most recently uploaded file.
type FileInfo struct {
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// CleaningRecord is one append-only cleaning log entry.
type CleaningRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}

// CleaningSummary is the latest-result cache of the clean stage.
type CleaningSummary struct {
	RowsBefore        int      `json:"rows_before"`
	RowsAfter         int      `json:"rows_after"`
	MissingFilled     int      `json:"missing_filled"`
	DuplicatesRemoved int      `json:"duplicates_removed"`
	Actions           []string `json:"actions"`
}

// QueryRecord is one append-only query history entry. Result holds the raw
// agent value; it is normalized only at the serialization boundary.
type QueryRecord struct {
	Timestamp   time.Time
	Query       string
	Result      history.QueryValue
	Explanation string
}

// QueryResult is the latest-result cache of the query stage.
type QueryResult struct {
	Query       string          `json:"query"`
	Explanation string          `json:"explanation"`
	Summary     history.Summary `json:"result_summary"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// ChartRecord is one append-only generated-chart entry (metadata only).
type ChartRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
}

// ChartPayload is a renderable chart, most recent first in State.ChartPayloads.
type ChartPayload struct {
	Title     string         `json:"title"`
	Type      string         `json:"type"`
	XColumn   string         `json:"x_col"`
	YColumn   string         `json:"y_col,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Figure    history.Figure `json:"-"`
}

// InsightRecord is one append-only insight entry.
type InsightRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Category  string    `json:"category"`
}

// ReportStatus is the latest-result cache of the report stage.
type ReportStatus struct {
	Filename    string    `json:"filename"`
	GeneratedAt time.Time `json:"generated_at"`
}

// State holds all per-session workflow data. It is only ever touched through
// a Handle, under that session's lock.
type State struct {
	Raw     *dataset.Dataset
	Cleaned *dataset.Dataset
	// Current is the active working dataset: raw after upload, cleaned
	// after cleaning. Its nilness is the authoritative "dataset exists"
	// signal; AgentStatus flags are a derived cache set only by stage
	// commits.
	Current *dataset.Dataset

	Metadata map[string]any

	CleaningLog     []CleaningRecord
	QueryHistory    []QueryRecord
	GeneratedCharts []ChartRecord
	Insights        []InsightRecord

	AgentStatus map[string]bool

	FileInfo        *FileInfo
	Preview         *dataset.Preview
	CleaningSummary *CleaningSummary
	LastQueryResult *QueryResult
	ChartPayloads   []ChartPayload
	ReportStatus    *ReportStatus

	CreatedAt      time.Time
	LastActivityAt time.Time
}

// NewState builds an empty session state with all readiness flags false.
func NewState() *State {
	now := time.Now().UTC()
	return &State{
		Metadata: make(map[string]any),
		AgentStatus: map[string]bool{
			StatusInputComplete:    false,
			StatusCleaningComplete: false,
			StatusNLQReady:         false,
		},
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// HasData reports whether a working dataset exists.
func (s *State) HasData() bool { return s.Current != nil }

// Summary is the counts overview served by the summary endpoint.
type Summary struct {
	HasData            bool `json:"has_data"`
	Rows               int  `json:"rows"`
	Columns            int  `json:"columns"`
	CleaningOperations int  `json:"cleaning_operations"`
	QueriesExecuted    int  `json:"queries_executed"`
	ChartsGenerated    int  `json:"charts_generated"`
	InsightsCount      int  `json:"insights_count"`
}

// Summarize computes the counts overview of this state.
func (s *State) Summarize() Summary {
	out := Summary{
		HasData:            s.Current != nil,
		CleaningOperations: len(s.CleaningLog),
		QueriesExecuted:    len(s.QueryHistory),
		ChartsGenerated:    len(s.GeneratedCharts),
		InsightsCount:      len(s.Insights),
	}
	if s.Current != nil {
		out.Rows = s.Current.NumRows()
		out.Columns = s.Current.NumCols()
	}
	return out
}

// AddCleaningLog appends one timestamped cleaning entry.
func (s *State) AddCleaningLog(action, details string) {
	s.CleaningLog = append(s.CleaningLog, CleaningRecord{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Details:   details,
	})
}

// AddQuery appends one timestamped query history entry.
func (s *State) AddQuery(query string, result history.QueryValue, explanation string) {
	s.QueryHistory = append(s.QueryHistory, QueryRecord{
		Timestamp:   time.Now().UTC(),
		Query:       query,
		Result:      result,
		Explanation: explanation,
	})
}

// AddChart appends one timestamped generated-chart entry.
func (s *State) AddChart(chartType, title string) {
	s.GeneratedCharts = append(s.GeneratedCharts, ChartRecord{
		Timestamp: time.Now().UTC(),
		Type:      chartType,
		Title:     title,
	})
}

// AddInsight appends one timestamped insight entry.
func (s *State) AddInsight(text, category string) {
	if category == "" {
		category = "general"
	}
	s.Insights = append(s.Insights, InsightRecord{
		Timestamp: time.Now().UTC(),
		Text:      text,
		Category:  category,
	})
}
