package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"ideaforge/internal/clarify"
	"ideaforge/internal/eventbus"
	"ideaforge/internal/iterate"
	"ideaforge/internal/llm"
	"ideaforge/internal/store"
	"ideaforge/internal/tester"
	"ideaforge/internal/types"
	"ideaforge/internal/verify"
	"ideaforge/internal/workflow"
)

func newTestAPI(t *testing.T) (*API, *workflow.Orchestrator) {
	t.Helper()
	cat, err := clarify.NewCatalog()
	tester.NoErr(t, err)
	st := store.New(filepath.Join(t.TempDir(), "sessions.json"))
	bus := eventbus.New(100)
	verifier, err := verify.New(nil, verify.NullSource{}, verify.Config{})
	tester.NoErr(t, err)
	orch := workflow.New(
		clarify.New(cat, nil, st, clarify.Config{}),
		iterate.New(llm.NewFakeClient(), iterate.Config{}),
		verifier, st, nil, bus,
		workflow.Config{RoundAttempts: 1, RoundRetryDelay: time.Millisecond},
	)
	return NewAPI(orch, bus), orch
}

func post(t *testing.T, mux *http.ServeMux, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	b, err := json.Marshal(body)
	tester.NoErr(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var env envelope
	tester.NoErr(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func get(t *testing.T, mux *http.ServeMux, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	var env envelope
	tester.NoErr(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func dataMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	tester.True(t, ok, "data is not an object")
	return m
}

func TestClarifyLifecycleOverHTTP(t *testing.T) {
	api, orch := newTestAPI(t)
	mux := api.Routes()

	rec, env := post(t, mux, "/api/clarify/start", map[string]any{
		"idea_seed": map[string]any{"raw_text": "An async standup assistant for remote teams."},
	})
	tester.Eq(t, rec.Code, http.StatusOK)
	tester.True(t, env.Success)
	data := dataMap(t, env)
	sessionID := data["session_id"].(string)
	tester.True(t, sessionID != "")
	tester.True(t, data["next_question"] != nil)
	questions := data["questions"].([]any)
	tester.True(t, len(questions) >= 1)

	// answer every slot
	for _, q := range questions {
		slot := q.(map[string]any)["slot_name"].(string)
		rec, env = post(t, mux, "/api/clarify/answer", map[string]any{
			"session_id": sessionID, "slot_name": slot, "answer": "answer for " + slot,
		})
		tester.Eq(t, rec.Code, http.StatusOK)
		tester.True(t, env.Success)
	}
	tester.Eq(t, dataMap(t, env)["completed"], true)

	rec, env = post(t, mux, "/api/clarify/finish", map[string]any{"session_id": sessionID})
	tester.Eq(t, rec.Code, http.StatusOK)
	wfID := dataMap(t, env)["workflow_session_id"].(string)

	orch.Wait()
	rec, env = get(t, mux, "/api/workflow/status?session_id="+wfID)
	tester.Eq(t, rec.Code, http.StatusOK)
	status := dataMap(t, env)
	tester.Eq[any](t, status["state"], string(types.StateDone))
	tester.Eq[any](t, status["progress"], float64(100))

	rec, env = get(t, mux, "/api/summary?session_id="+wfID)
	tester.Eq(t, rec.Code, http.StatusOK)
	tester.True(t, env.Success)
}

func TestErrorEnvelopeKinds(t *testing.T) {
	api, _ := newTestAPI(t)
	mux := api.Routes()

	rec, env := get(t, mux, "/api/workflow/status?session_id=wf_missing")
	tester.Eq(t, rec.Code, http.StatusNotFound)
	tester.False(t, env.Success)
	tester.Eq(t, env.ErrorKind, "NotFound")

	// pausing a session that is already DONE is an InvalidState conflict
	rec, env = post(t, mux, "/api/clarify/start", map[string]any{
		"idea_seed": map[string]any{"raw_text": ""},
	})
	tester.Eq(t, rec.Code, http.StatusConflict)
	tester.Eq(t, env.ErrorKind, "InvalidState")
}

func TestInvalidStateCarriesLastVersion(t *testing.T) {
	api, orch := newTestAPI(t)
	mux := api.Routes()

	_, env := post(t, mux, "/api/clarify/start", map[string]any{
		"idea_seed": map[string]any{"raw_text": "A marketplace idea."},
	})
	sessionID := dataMap(t, env)["session_id"].(string)
	questions := dataMap(t, env)["questions"].([]any)
	for _, q := range questions {
		slot := q.(map[string]any)["slot_name"].(string)
		post(t, mux, "/api/clarify/answer", map[string]any{
			"session_id": sessionID, "slot_name": slot, "answer": "x",
		})
	}
	_, env = post(t, mux, "/api/clarify/finish", map[string]any{"session_id": sessionID})
	wfID := dataMap(t, env)["workflow_session_id"].(string)
	orch.Wait()

	rec, env := post(t, mux, "/api/workflow/pause", map[string]any{"session_id": wfID})
	tester.Eq(t, rec.Code, http.StatusConflict)
	tester.True(t, env.LastVersion != nil)
	tester.True(t, *env.LastVersion >= 1)
}

func TestEventHistoryEndpoint(t *testing.T) {
	api, orch := newTestAPI(t)
	mux := api.Routes()

	_, env := post(t, mux, "/api/clarify/start", map[string]any{
		"idea_seed": map[string]any{"raw_text": "A marketplace idea."},
	})
	sessionID := dataMap(t, env)["session_id"].(string)
	_ = sessionID
	orch.Wait()

	rec, env := get(t, mux, "/api/events/history?limit=10")
	tester.Eq(t, rec.Code, http.StatusOK)
	events := dataMap(t, env)["events"].([]any)
	tester.True(t, len(events) >= 1)

	req := httptest.NewRequest(http.MethodGet, "/api/events/history?limit=-1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	tester.Eq(t, rec.Code, http.StatusBadRequest)
}

func TestWatchRejectsUnknownSession(t *testing.T) {
	api, _ := newTestAPI(t)
	mux := api.Routes()
	rec, env := get(t, mux, "/api/watch/wf_missing")
	tester.Eq(t, rec.Code, http.StatusNotFound)
	tester.Eq(t, env.ErrorKind, "NotFound")
}
