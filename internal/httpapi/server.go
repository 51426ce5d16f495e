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

	"github.com/smartflow-crm/personaplex/internal/callback"
	"github.com/smartflow-crm/personaplex/internal/config"
	"github.com/smartflow-crm/personaplex/internal/ctxstore"
	"github.com/smartflow-crm/personaplex/internal/engine"
	"github.com/smartflow-crm/personaplex/internal/model"
	"github.com/smartflow-crm/personaplex/internal/observability"
	"github.com/smartflow-crm/personaplex/internal/persona"
	"github.com/smartflow-crm/personaplex/internal/policy"
	"github.com/smartflow-crm/personaplex/internal/session"
)

// Runner serves one realtime connection to completion.
type Runner interface {
	Run(ctx context.Context, conn engine.Conn) error
}

type Server struct {
	cfg      config.Config
	gate     *policy.KeyGate
	sessions *session.Manager
	store    *ctxstore.Store
	mdl      model.Engine
	runner   Runner
	notifier *callback.Notifier
	metrics  *observability.Metrics
	window   *observability.LatencyWindow
	started  time.Time
	upgrader websocket.Upgrader
}

func New(cfg config.Config, gate *policy.KeyGate, sessions *session.Manager, store *ctxstore.Store, mdl model.Engine, runner Runner, notifier *callback.Notifier, metrics *observability.Metrics, window *observability.LatencyWindow) *Server {
	return &Server{
		cfg:      cfg,
		gate:     gate,
		sessions: sessions,
		store:    store,
		mdl:      mdl,
		runner:   runner,
		notifier: notifier,
		metrics:  metrics,
		window:   window,
		started:  time.Now().UTC(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
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

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/perf/latency", s.handlePerfLatency)
	r.Get("/personas", s.handlePersonas)
	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(s.requireKey)
		r.Post("/infer", s.handleInfer)
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/webhook/context", s.handleInjectContext)
		r.Post("/webhook/context/bulk", s.handleInjectContextBulk)
		r.Post("/webhook/event", s.handleInjectEvent)
		r.Get("/context/{session_id}", s.handleGetContext)
		r.Delete("/context/{session_id}", s.handleDeleteContext)
	})

	return r
}

// requireKey guards the sidecar surface with the shared API key. An
// unconfigured key leaves the surface open for local development.
func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.gate != nil && s.gate.Enabled() && !s.gate.Allow(r.Header.Get("X-API-Key")) {
			respondError(w, http.StatusUnauthorized, "invalid_api_key", "missing or invalid X-API-Key header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.store.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"model":            s.cfg.ModelName,
		"device":           s.mdl.Device(),
		"model_loaded":     s.mdl.Loaded(),
		"active_sessions":  s.sessions.ActiveCount(),
		"max_sessions":     s.sessions.MaxSessions(),
		"context_sessions": st.ActiveSessions,
		"context_entries":  st.TotalEntries,
		"uptime_seconds":   time.Since(s.started).Seconds(),
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

func (s *Server) handlePersonas(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"personas": persona.List()})
}

type inferRequest struct {
	Text    string `json:"text"`
	Persona string `json:"persona"`
}

type inferResponse struct {
	SessionID    string  `json:"session_id"`
	Persona      string  `json:"persona"`
	Intent       string  `json:"intent"`
	Confidence   float64 `json:"confidence"`
	ResponseText string  `json:"response_text"`
	LatencyMS    float64 `json:"latency_ms"`
}

// handleInfer runs one text turn through the model inside a short-lived
// session. The session counts against capacity while the turn runs.
func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "missing_text", "text is required")
		return
	}

	p := persona.Get(req.Persona)
	sess, err := s.sessions.Create(p.ID)
	if err != nil {
		if errors.Is(err, session.ErrCapacity) {
			respondError(w, http.StatusServiceUnavailable, "at_capacity", "maximum concurrent sessions reached")
			return
		}
		respondError(w, http.StatusInternalServerError, "session_create_failed", err.Error())
		return
	}
	defer func() { _, _ = s.sessions.End(sess.ID) }()

	start := time.Now()
	res, err := s.mdl.InferText(r.Context(), req.Text, p.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "inference_failed", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveInferLatency(time.Since(start))
	}
	if s.window != nil {
		s.window.Observe("infer_text", float64(time.Since(start).Milliseconds()))
	}

	_ = s.sessions.AppendTurn(sess.ID, "user", req.Text)
	_ = s.sessions.AppendTurn(sess.ID, "assistant", res.ResponseText)

	respondJSON(w, http.StatusOK, inferResponse{
		SessionID:    sess.ID,
		Persona:      p.ID,
		Intent:       res.Intent,
		Confidence:   res.Confidence,
		ResponseText: res.ResponseText,
		LatencyMS:    res.LatencyMS,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	live := s.sessions.List()
	infos := make([]session.Info, 0, len(live))
	now := time.Now().UTC()
	for _, sess := range live {
		status := "active"
		if !sess.Active {
			status = "ended"
		}
		infos = append(infos, session.Info{
			SessionID:       sess.ID,
			Persona:         sess.Persona,
			CreatedAt:       sess.CreatedAt.Format(time.RFC3339),
			DurationSeconds: now.Sub(sess.CreatedAt).Seconds(),
			TurnCount:       len(sess.Transcript),
			Status:          status,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"active_sessions": len(infos),
		"max_sessions":    s.sessions.MaxSessions(),
		"sessions":        infos,
	})
}

// handleDeleteSession force-ends a session from the management surface.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	summary, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		s.metrics.SessionEvents.WithLabelValues("admin_end").Inc()
	}
	if s.notifier != nil {
		s.notifier.CallEnded(r.Context(), *summary, "admin_end")
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "session runner not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	}
	_ = s.runner.Run(r.Context(), conn)
	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}
}

type injectContextRequest struct {
	SessionID   string         `json:"session_id"`
	ContextType string         `json:"context_type"`
	Data        map[string]any `json:"data"`
	Priority    string         `json:"priority"`
	TTLSeconds  float64        `json:"ttl_seconds"`
	Source      string         `json:"source"`
}

func (s *Server) handleInjectContext(w http.ResponseWriter, r *http.Request) {
	var req injectContextRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		req.Source = "n8n"
	}

	ttl := time.Duration(req.TTLSeconds * float64(time.Second))
	entry, err := s.store.Add(req.SessionID, req.ContextType, req.Data, ctxstore.NormalizePriority(req.Priority), req.Source, ttl)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_context", err.Error())
		return
	}
	s.countContextOp("inject")

	respondJSON(w, http.StatusCreated, map[string]any{
		"context_id":  entry.ID,
		"type":        entry.Type,
		"priority":    entry.Priority,
		"ttl_seconds": entry.TTLSeconds,
	})
}

type injectBulkRequest struct {
	SessionID string              `json:"session_id"`
	Items     []ctxstore.BulkItem `json:"items"`
}

func (s *Server) handleInjectContextBulk(w http.ResponseWriter, r *http.Request) {
	var req injectBulkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	results := s.store.AddBulk(req.SessionID, req.Items)
	s.countContextOp("inject_bulk")

	respondJSON(w, http.StatusCreated, map[string]any{
		"injected": len(results),
		"skipped":  len(req.Items) - len(results),
		"results":  results,
	})
}

type injectEventRequest struct {
	SessionID     string         `json:"session_id"`
	Event         string         `json:"event"`
	Data          map[string]any `json:"data"`
	CustomerPhone string         `json:"customer_phone"`
	CustomerName  string         `json:"customer_name"`
	AgentID       string         `json:"agent_id"`
}

func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	var req injectEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Event) == "" {
		respondError(w, http.StatusBadRequest, "missing_event", "event is required")
		return
	}

	evt := ctxstore.Event{
		Name:          req.Event,
		Data:          req.Data,
		CustomerPhone: req.CustomerPhone,
		CustomerName:  req.CustomerName,
		AgentID:       req.AgentID,
	}
	if err := s.store.AddEvent(req.SessionID, evt); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}
	s.countContextOp("event")

	if s.notifier != nil {
		s.notifier.EventReceived(r.Context(), req.SessionID, evt)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "recorded",
		"session_id": req.SessionID,
		"event":      req.Event,
	})
}

// handleGetContext returns the session's entries in priority order plus a
// merged-by-type view folded over that order, so the last entry of each type
// in priority order wins.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session id is required")
		return
	}

	var types []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		types = strings.Split(raw, ",")
	}
	includeExpired := r.URL.Query().Get("include_expired") == "true"

	entries := s.store.Get(sessionID, types, includeExpired)
	s.countContextOp("read")

	merged := make(map[string]map[string]any, len(entries))
	for _, e := range entries {
		merged[e.Type] = e.Data
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"count":      len(entries),
		"entries":    entries,
		"merged":     merged,
	})
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session id is required")
		return
	}
	removed := s.store.Delete(sessionID)
	s.countContextOp("delete")
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"removed":    removed,
	})
}

func (s *Server) countContextOp(op string) {
	if s.metrics != nil {
		s.metrics.ContextOps.WithLabelValues(op).Inc()
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
