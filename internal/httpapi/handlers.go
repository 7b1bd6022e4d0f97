package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/giuliaserra/aria/internal/agent"
	"github.com/giuliaserra/aria/internal/history"
	"github.com/giuliaserra/aria/internal/session"
	"github.com/giuliaserra/aria/internal/workflow"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}

	// One spare MiB so the multipart framing itself never trips the limit;
	// the runner enforces the actual payload cap.
	maxBytes := int64(s.cfg.MaxUploadSizeMB+1) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, string(workflow.KindInvalidInput), "expected a multipart form with a \"file\" field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, string(workflow.KindInvalidInput), "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, string(workflow.KindInvalidInput), "could not read uploaded file")
		return
	}

	res, err := s.runner.Upload(r.Context(), h, data, header.Filename)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleClean(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	var opts agent.CleaningOptions
	if err := decodeJSON(r, &opts); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, string(workflow.KindInvalidInput), err.Error())
		return
	}

	res, err := s.runner.Clean(r.Context(), h, opts)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCleaningNeeds(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	issues, err := s.runner.CleaningNeeds(h)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, issues)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(workflow.KindInvalidInput), "expected a JSON body with a \"query\" field")
		return
	}

	res, err := s.runner.Query(r.Context(), h, req.Query)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleVisualizeAuto(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	res, err := s.runner.Visualize(r.Context(), h, agent.ChartRequest{Auto: true})
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chartResponse(res))
}

func (s *Server) handleVisualizeCustom(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	var req struct {
		ChartType string `json:"chart_type"`
		XColumn   string `json:"x_col"`
		YColumn   string `json:"y_col"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, string(workflow.KindInvalidInput), "expected a JSON body with chart_type and x_col")
		return
	}

	res, err := s.runner.Visualize(r.Context(), h, agent.ChartRequest{
		Type:    req.ChartType,
		XColumn: req.XColumn,
		YColumn: req.YColumn,
	})
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chartResponse(res))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	res, err := s.runner.Report(r.Context(), h)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	var out struct {
		session.Summary
		FileInfo *session.FileInfo `json:"file_info,omitempty"`
		Status   map[string]bool   `json:"agent_status"`
	}
	h.View(func(st *session.State) {
		out.Summary = st.Summarize()
		out.FileInfo = st.FileInfo
		out.Status = map[string]bool{
			session.StatusInputComplete:    st.AgentStatus[session.StatusInputComplete],
			session.StatusCleaningComplete: st.AgentStatus[session.StatusCleaningComplete],
			session.StatusNLQReady:         st.AgentStatus[session.StatusNLQReady],
		}
	})
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	entries := []history.Entry{}
	h.View(func(st *session.State) {
		for _, q := range st.QueryHistory {
			entries = append(entries, history.NewEntry(q.Timestamp, q.Query, q.Explanation, q.Result))
		}
	})
	respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// chartView pairs chart metadata with its encoded figure. The figure is
// sanitized at this boundary, never stored encoded.
type chartView struct {
	Title     string          `json:"title"`
	Type      string          `json:"type"`
	XColumn   string          `json:"x_col"`
	YColumn   string          `json:"y_col,omitempty"`
	CreatedAt string          `json:"created_at"`
	Figure    json.RawMessage `json:"figure"`
}

func chartViews(payloads []session.ChartPayload) []chartView {
	views := make([]chartView, 0, len(payloads))
	for _, p := range payloads {
		views = append(views, chartView{
			Title:     p.Title,
			Type:      p.Type,
			XColumn:   p.XColumn,
			YColumn:   p.YColumn,
			CreatedAt: p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Figure:    json.RawMessage(history.EncodeFigure(p.Figure)),
		})
	}
	return views
}

func chartResponse(res workflow.Result) map[string]any {
	return map[string]any{
		"success": res.Success,
		"message": res.Message,
		"charts":  chartViews(res.Charts),
	}
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	var views []chartView
	h.View(func(st *session.State) {
		views = chartViews(st.ChartPayloads)
	})
	respondJSON(w, http.StatusOK, map[string]any{"charts": views})
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	// Reject anything that is not a bare filename.
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		respondError(w, http.StatusBadRequest, string(workflow.KindInvalidInput), "invalid report filename")
		return
	}
	path := filepath.Join(s.cfg.ReportsDir, name)
	w.Header().Set("Content-Disposition", "attachment; filename="+name)
	http.ServeFile(w, r, path)
}
