package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"ideaforge/internal/eventbus"
	"ideaforge/internal/types"
	"ideaforge/internal/workflow"
)

// API exposes the orchestrator over plain JSON HTTP plus two push
// surfaces (SSE per session, websocket firehose).
type API struct {
	orch *workflow.Orchestrator
	bus  *eventbus.Bus
}

func NewAPI(orch *workflow.Orchestrator, bus *eventbus.Bus) *API {
	return &API{orch: orch, bus: bus}
}

// Routes builds the HTTP mux.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/clarify/start", a.handleClarifyStart)
	mux.HandleFunc("POST /api/clarify/answer", a.handleClarifyAnswer)
	mux.HandleFunc("GET /api/clarify/status", a.handleClarifyStatus)
	mux.HandleFunc("POST /api/clarify/finish", a.handleClarifyFinish)
	mux.HandleFunc("POST /api/summary/submit", a.handleSummarySubmit)
	mux.HandleFunc("GET /api/summary", a.handleSummaryGet)
	mux.HandleFunc("POST /api/workflow/start", a.handleWorkflowStart)
	mux.HandleFunc("POST /api/workflow/pause", a.handleWorkflowPause)
	mux.HandleFunc("POST /api/workflow/resume", a.handleWorkflowResume)
	mux.HandleFunc("POST /api/workflow/stop", a.handleWorkflowStop)
	mux.HandleFunc("POST /api/workflow/resolve", a.handleWorkflowResolve)
	mux.HandleFunc("GET /api/workflow/status", a.handleWorkflowStatus)
	mux.HandleFunc("GET /api/events/history", a.handleEventHistory)
	mux.HandleFunc("GET /api/events/ws", a.handleEventsWS)
	mux.HandleFunc("GET /api/watch/", a.handleWatchSSE)
	return mux
}

// envelope is the uniform response shape.
type envelope struct {
	Success     bool   `json:"success"`
	Data        any    `json:"data,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	LastVersion *int   `json:"last_version,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// writeErr maps error kinds to HTTP statuses and, when the session is
// known, reports its last stable version so clients can resume.
func (a *API) writeErr(w http.ResponseWriter, sessionID string, err error) {
	env := envelope{Error: err.Error(), ErrorKind: types.ErrorKind(err)}
	if sessionID != "" {
		if view, serr := a.orch.Status(sessionID); serr == nil && view.LastVersion != nil {
			n := view.LastVersion.VersionNumber
			env.LastVersion = &n
		}
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrInvalidState), errors.Is(err, types.ErrExpired):
		status = http.StatusConflict
	case errors.Is(err, types.ErrVerificationFailed):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrProviderUnavailable), errors.Is(err, types.ErrRoundFailed):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.Printf("api: session %s: %v", sessionID, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func decode(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}

func (a *API) handleClarifyStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdeaSeed types.IdeaSeed `json:"idea_seed"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	id, first, err := a.orch.StartClarification(r.Context(), req.IdeaSeed)
	if err != nil {
		a.writeErr(w, "", err)
		return
	}
	view, err := a.orch.ClarificationStatus(id)
	if err != nil {
		a.writeErr(w, id, err)
		return
	}
	writeOK(w, map[string]any{
		"session_id":    id,
		"questions":     view.Questions,
		"next_question": first,
	})
}

func (a *API) handleClarifyAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		SlotName  string `json:"slot_name"`
		Answer    string `json:"answer"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	next, completed, err := a.orch.SubmitAnswer(req.SessionID, req.SlotName, req.Answer)
	if err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	view, err := a.orch.ClarificationStatus(req.SessionID)
	if err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	writeOK(w, map[string]any{
		"next_question": next,
		"completed":     completed,
		"pending":       view.Pending,
	})
}

func (a *API) handleClarifyStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	view, err := a.orch.ClarificationStatus(id)
	if err != nil {
		a.writeErr(w, id, err)
		return
	}
	writeOK(w, view)
}

func (a *API) handleClarifyFinish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	wfID, err := a.orch.FinishClarification(r.Context(), req.SessionID)
	if err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	writeOK(w, map[string]any{"workflow_session_id": wfID})
}

func (a *API) handleSummarySubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string                 `json:"session_id"`
		Summary   *types.SummaryDocument `json:"summary"`
		Restart   bool                   `json:"restart"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	wfID, err := a.orch.SubmitSummary(req.SessionID, req.Summary, req.Restart)
	if err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	writeOK(w, map[string]any{"workflow_session_id": wfID})
}

func (a *API) handleSummaryGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	view, err := a.orch.Summary(id)
	if err != nil {
		a.writeErr(w, id, err)
		return
	}
	writeOK(w, view)
}

// sessionAction wraps the one-argument workflow operations.
func (a *API) sessionAction(w http.ResponseWriter, r *http.Request, op func(string) error) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := op(req.SessionID); err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	view, err := a.orch.Status(req.SessionID)
	if err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	writeOK(w, view)
}

func (a *API) handleWorkflowStart(w http.ResponseWriter, r *http.Request) {
	a.sessionAction(w, r, a.orch.StartWorkflow)
}

func (a *API) handleWorkflowPause(w http.ResponseWriter, r *http.Request) {
	a.sessionAction(w, r, a.orch.Pause)
}

func (a *API) handleWorkflowResume(w http.ResponseWriter, r *http.Request) {
	a.sessionAction(w, r, a.orch.Resume)
}

func (a *API) handleWorkflowStop(w http.ResponseWriter, r *http.Request) {
	a.sessionAction(w, r, a.orch.Stop)
}

func (a *API) handleWorkflowResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Accept    bool   `json:"accept"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := a.orch.ResolveVerification(req.SessionID, req.Accept); err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	view, err := a.orch.Status(req.SessionID)
	if err != nil {
		a.writeErr(w, req.SessionID, err)
		return
	}
	writeOK(w, view)
}

func (a *API) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	view, err := a.orch.Status(id)
	if err != nil {
		a.writeErr(w, id, err)
		return
	}
	writeOK(w, view)
}

func (a *API) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	writeOK(w, map[string]any{"events": a.bus.History(eventType, limit)})
}
