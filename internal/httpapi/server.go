package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/giuliaserra/aria/internal/archive"
	"github.com/giuliaserra/aria/internal/config"
	"github.com/giuliaserra/aria/internal/observability"
	"github.com/giuliaserra/aria/internal/session"
	"github.com/giuliaserra/aria/internal/workflow"
)

// sessionCookie carries the browser session id. The X-Session-Id header is
// the strict alternative for non-browser clients: it is never auto-created.
const (
	sessionCookie   = "aria_session"
	sessionIDHeader = "X-Session-Id"
)

type Server struct {
	cfg      config.Config
	sessions *session.Store
	runner   *workflow.Runner
	archive  archive.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler
	hub      *eventHub
}

func New(cfg config.Config, sessions *session.Store, runner *workflow.Runner, store archive.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		runner:   runner,
		archive:  store,
		metrics:  metrics,
		static:   newStaticHandler(),
		hub:      newEventHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up. This prevents other
				// sites from driving a user's analysis session if the
				// service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// PublishStageEvent fans one stage outcome out to that session's websocket
// subscribers. Wire it as the workflow runner's notifier.
func (s *Server) PublishStageEvent(ev workflow.StageEvent) {
	s.hub.publish(ev)
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session", s.handleCreateSession)
	r.Post("/v1/session/reset", s.handleResetSession)
	r.Get("/v1/session/events", s.handleSessionEvents)
	r.Get("/v1/session/archive", s.handleSessionArchive)

	r.Post("/v1/upload", s.handleUpload)
	r.Post("/v1/clean", s.handleClean)
	r.Get("/v1/cleaning/needs", s.handleCleaningNeeds)
	r.Post("/v1/query", s.handleQuery)
	r.Post("/v1/visualize/auto", s.handleVisualizeAuto)
	r.Post("/v1/visualize/custom", s.handleVisualizeCustom)
	r.Post("/v1/report", s.handleReport)

	r.Get("/v1/summary", s.handleSummary)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/charts", s.handleCharts)
	r.Get("/reports/{filename}", s.handleDownloadReport)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"agent_mode": s.cfg.AgentMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.Count(),
	})
}

// sessionHandle resolves the request's session. Header ids are strict and
// fail on unknown ids; cookie ids fall back to creating a fresh session, the
// way browser clients expect. A false return means the response was written.
func (s *Server) sessionHandle(w http.ResponseWriter, r *http.Request) (*session.Handle, bool) {
	if id := strings.TrimSpace(r.Header.Get(sessionIDHeader)); id != "" {
		h, err := s.sessions.Resolve(id)
		if err != nil {
			respondError(w, http.StatusNotFound, string(workflow.KindNotFound), "unknown session id")
			return nil, false
		}
		return h, true
	}

	if c, err := r.Cookie(sessionCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		if h, err := s.sessions.Resolve(strings.TrimSpace(c.Value)); err == nil {
			return h, true
		}
		// Stale cookie after restart or expiry: fall through to a new session.
	}

	h := s.newSession(w)
	return h, true
}

func (s *Server) newSession(w http.ResponseWriter) *session.Handle {
	id := s.sessions.Create()
	h, _ := s.sessions.Resolve(id)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.metrics.ActiveSessions.Set(float64(s.sessions.Count()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	return h
}

func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	h := s.newSession(w)
	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id":        h.ID(),
		"inactivity_ttl_ms": s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	h.Reset()
	s.metrics.SessionEvents.WithLabelValues("reset").Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": h.ID(),
	})
}

func (s *Server) handleSessionArchive(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}
	events, err := s.archive.RecentEvents(r.Context(), h.ID(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, string(workflow.KindInternalFault), "archive unavailable")
		return
	}
	if events == nil {
		events = []archive.StageEvent{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleSessionEvents streams stage outcomes for the caller's session over a
// websocket. The read side exists only to notice the peer going away.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	h, ok := s.sessionHandle(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.hub.subscribe(h.ID())
	defer s.hub.unsubscribe(h.ID(), events)

	go func() {
		defer cancel()
		conn.SetReadLimit(1 << 16)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
			return
		case ev, open := <-events:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.metrics.WSMessages.WithLabelValues("write_error").Inc()
				return
			}
			s.metrics.WSMessages.WithLabelValues("sent").Inc()
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondWorkflowError maps the failure taxonomy onto HTTP statuses. Internal
// faults are reported opaquely; their detail belongs in logs, not responses.
func respondWorkflowError(w http.ResponseWriter, err error) {
	kind := workflow.KindOf(err)
	switch kind {
	case workflow.KindInvalidInput, workflow.KindPrerequisiteNotMet, workflow.KindAgentFailure:
		respondError(w, http.StatusBadRequest, string(kind), workflow.MessageOf(err))
	case workflow.KindNotFound:
		respondError(w, http.StatusNotFound, string(kind), workflow.MessageOf(err))
	case workflow.KindTimeout:
		respondError(w, http.StatusGatewayTimeout, string(kind), workflow.MessageOf(err))
	default:
		respondError(w, http.StatusInternalServerError, string(workflow.KindInternalFault), "internal error")
	}
}
