// Package workflow drives sessions through the clarify → iterate →
// verify → summarize pipeline. The orchestrator's state machine, not any
// per-engine state, is the authoritative source of a session's status.
package workflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"ideaforge/internal/clarify"
	"ideaforge/internal/eventbus"
	"ideaforge/internal/iterate"
	"ideaforge/internal/store"
	"ideaforge/internal/summary"
	"ideaforge/internal/types"
	"ideaforge/internal/verify"
)

// Config tunes the orchestrator.
type Config struct {
	Policy iterate.PolicyConfig
	// RoundAttempts is the retry budget for one iteration round before
	// the session goes to ERROR.
	RoundAttempts int
	// RoundRetryDelay is the base backoff between round attempts.
	RoundRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.RoundAttempts <= 0 {
		c.RoundAttempts = 3
	}
	if c.RoundRetryDelay <= 0 {
		c.RoundRetryDelay = 500 * time.Millisecond
	}
	return c
}

// session pairs the workflow record with its driver bookkeeping. The
// record is owned by the orchestrator; everything external refers to it
// by id only.
type session struct {
	mu       sync.Mutex
	wf       *types.WorkflowSession
	resumeTo types.SessionState
	driving  bool
	// epoch invalidates in-flight round results: a pause or stop bumps
	// it, and the driver discards any result computed under an older
	// epoch even if the session has been resumed since.
	epoch uint64
}

// Orchestrator owns all workflow sessions in the process. Sessions run
// concurrently; within one session only one engine step is in flight.
type Orchestrator struct {
	clarifier *clarify.Engine
	iterator  *iterate.Engine
	verifier  *verify.Engine
	sessions  map[string]*session
	store     *store.Store
	archive   *store.ArchiveStore
	bus       *eventbus.Bus
	cfg       Config

	mu sync.Mutex
	wg sync.WaitGroup
}

func New(clarifier *clarify.Engine, iterator *iterate.Engine, verifier *verify.Engine,
	st *store.Store, archive *store.ArchiveStore, bus *eventbus.Bus, cfg Config) *Orchestrator {
	return &Orchestrator{
		clarifier: clarifier,
		iterator:  iterator,
		verifier:  verifier,
		sessions:  make(map[string]*session),
		store:     st,
		archive:   archive,
		bus:       bus,
		cfg:       cfg.withDefaults(),
	}
}

// Wait blocks until all driver goroutines finish. For shutdown and tests.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// StartClarification creates a workflow session in CLARIFYING and its
// clarification session, returning the workflow id and first question.
func (o *Orchestrator) StartClarification(ctx context.Context, seed types.IdeaSeed) (string, *types.QuestionView, error) {
	clarID, first, err := o.clarifier.Start(ctx, seed)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	wf := &types.WorkflowSession{
		ID:              newID("wf"),
		State:           types.StateInit,
		IdeaSeed:        seed,
		ClarificationID: clarID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s := &session{wf: wf}

	o.mu.Lock()
	o.sessions[wf.ID] = s
	o.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := wf.Transition(types.StateClarifying); err != nil {
		return "", nil, err
	}
	o.persistLocked(s)
	o.emit(eventbus.TopicWorkflowStarted, wf, "clarification started")
	o.progress(wf, "collecting answers")
	return wf.ID, first, nil
}

// SubmitAnswer forwards an answer to the clarification engine. Rejected
// while the session is paused or past clarification.
func (o *Orchestrator) SubmitAnswer(sessionID, slotName, answer string) (*types.QuestionView, bool, error) {
	s, err := o.lookup(sessionID)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	state := s.wf.State
	clarID := s.wf.ClarificationID
	s.mu.Unlock()
	if state != types.StateClarifying {
		return nil, false, fmt.Errorf("%w: session %s is %s", types.ErrInvalidState, sessionID, state)
	}
	return o.clarifier.SubmitAnswer(clarID, slotName, answer)
}

// ClarificationStatus returns the clarification snapshot for a workflow
// session.
func (o *Orchestrator) ClarificationStatus(sessionID string) (types.ClarificationView, error) {
	s, err := o.lookup(sessionID)
	if err != nil {
		return types.ClarificationView{}, err
	}
	s.mu.Lock()
	clarID := s.wf.ClarificationID
	s.mu.Unlock()
	return o.clarifier.Status(clarID)
}

// FinishClarification freezes clarification, seeds version 0 from the
// enriched idea, records the project, and starts the iteration driver.
func (o *Orchestrator) FinishClarification(ctx context.Context, sessionID string) (string, error) {
	s, err := o.lookup(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.wf.State != types.StateClarifying {
		state := s.wf.State
		s.mu.Unlock()
		return "", fmt.Errorf("%w: session %s is %s", types.ErrInvalidState, sessionID, state)
	}
	clarID := s.wf.ClarificationID
	s.mu.Unlock()

	clarSess, err := o.clarifier.Finish(ctx, clarID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wf.Transition(types.StateClarified); err != nil {
		return "", err
	}
	seed := o.iterator.SeedVersion(clarify.EnrichedIdea(clarSess))
	s.wf.Versions = []types.IterationVersion{seed}
	o.recordProjectLocked(s, clarSess)
	o.persistLocked(s)
	o.emit(eventbus.TopicWorkflowStageChanged, s.wf, "clarification finished")

	// CLARIFIED → ADV_ITERATING is automatic.
	if err := s.wf.Transition(types.StateAdvIterating); err != nil {
		return "", err
	}
	o.persistLocked(s)
	o.progress(s.wf, "iterating")
	o.startDriverLocked(s)
	return s.wf.ID, nil
}

// StartWorkflow relaunches the driver for a session sitting in
// ADV_ITERATING without one, e.g. after a strict verification failure.
func (o *Orchestrator) StartWorkflow(sessionID string) error {
	s, err := o.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wf.State != types.StateAdvIterating {
		return fmt.Errorf("%w: session %s is %s", types.ErrInvalidState, sessionID, s.wf.State)
	}
	o.startDriverLocked(s)
	return nil
}

// Pause suspends an active session. In-flight round results are discarded
// when they return.
func (o *Orchestrator) Pause(sessionID string) error {
	s, err := o.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.wf.State
	if err := s.wf.Transition(types.StatePaused); err != nil {
		return err
	}
	s.resumeTo = prev
	s.epoch++
	o.persistLocked(s)
	o.emit(eventbus.TopicWorkflowPaused, s.wf, "paused")
	return nil
}

// Resume returns a paused session to its prior state, relaunching the
// iteration driver when needed.
func (o *Orchestrator) Resume(sessionID string) error {
	s, err := o.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wf.State != types.StatePaused {
		return fmt.Errorf("%w: session %s is %s", types.ErrInvalidState, sessionID, s.wf.State)
	}
	if err := s.wf.Transition(s.resumeTo); err != nil {
		return err
	}
	o.persistLocked(s)
	o.emit(eventbus.TopicWorkflowResumed, s.wf, "resumed")
	if s.wf.State == types.StateAdvIterating {
		o.startDriverLocked(s)
	}
	return nil
}

// Stop terminates a paused or errored session for good. The record stays
// inspectable.
func (o *Orchestrator) Stop(sessionID string) error {
	s, err := o.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wf.Transition(types.StateStopped); err != nil {
		return err
	}
	s.epoch++
	o.persistLocked(s)
	o.emit(eventbus.TopicWorkflowStopped, s.wf, "stopped")
	return nil
}

// Status returns the externally visible session snapshot.
func (o *Orchestrator) Status(sessionID string) (types.WorkflowView, error) {
	s, err := o.lookup(sessionID)
	if err != nil {
		return types.WorkflowView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	view := types.WorkflowView{
		SessionID:    s.wf.ID,
		State:        s.wf.State,
		Progress:     o.progressOf(s.wf),
		Verification: s.wf.Verification,
	}
	if last := s.wf.LastVersion(); last != nil {
		cp := *last
		view.LastVersion = &cp
	}
	return view, nil
}

// Summary returns the session's rendered summary document.
func (o *Orchestrator) Summary(sessionID string) (types.SummaryView, error) {
	s, err := o.lookup(sessionID)
	if err != nil {
		return types.SummaryView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wf.Summary == nil {
		return types.SummaryView{}, fmt.Errorf("%w: session %s has no summary yet", types.ErrNotFound, sessionID)
	}
	return types.SummaryView{SessionID: s.wf.ID, Summary: s.wf.Summary}, nil
}

// SubmitSummary persists a user-edited summary. With restart, a new
// workflow session re-enters iteration with version 0 set to the edited
// refined idea; the originating clarification stays attached for audit.
func (o *Orchestrator) SubmitSummary(sessionID string, doc *types.SummaryDocument, restart bool) (string, error) {
	if err := summary.ValidateEdit(doc); err != nil {
		return "", err
	}
	s, err := o.lookup(sessionID)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.wf.Summary = doc
	s.wf.UpdatedAt = time.Now()
	o.persistLocked(s)
	clarID := s.wf.ClarificationID
	seed := s.wf.IdeaSeed
	s.mu.Unlock()

	if clarID != "" {
		if err := o.clarifier.AttachSummary(clarID, doc); err != nil {
			log.Printf("workflow: attach summary to clarification %s: %v", clarID, err)
		}
	}
	if !restart {
		return sessionID, nil
	}

	now := time.Now()
	wf := &types.WorkflowSession{
		ID:              newID("wf"),
		State:           types.StateInit,
		IdeaSeed:        seed,
		ClarificationID: clarID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ns := &session{wf: wf}
	o.mu.Lock()
	o.sessions[wf.ID] = ns
	o.mu.Unlock()

	ns.mu.Lock()
	defer ns.mu.Unlock()
	// INIT → CLARIFYING → CLARIFIED → ADV_ITERATING, skipping the
	// question loop: the edited summary already carries the answers.
	for _, st := range []types.SessionState{types.StateClarifying, types.StateClarified, types.StateAdvIterating} {
		if err := wf.Transition(st); err != nil {
			return "", err
		}
	}
	wf.Versions = []types.IterationVersion{o.iterator.SeedVersion(doc.RefinedIdea)}
	o.persistLocked(ns)
	o.emit(eventbus.TopicWorkflowStarted, wf, "restarted from edited summary")
	o.progress(wf, "iterating")
	o.startDriverLocked(ns)
	return wf.ID, nil
}

// ResolveVerification handles the manual branch after a strict
// verification failure: accept the recorded report and continue to
// summary, or reject it and iterate further.
func (o *Orchestrator) ResolveVerification(sessionID string, accept bool) error {
	s, err := o.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wf.State != types.StateAdvIterating || s.wf.Verification == nil {
		return fmt.Errorf("%w: session %s has no pending verification", types.ErrInvalidState, sessionID)
	}
	if !accept {
		s.wf.Verification = nil
		o.startDriverLocked(s)
		return nil
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.finalize(s)
	}()
	return nil
}

func (o *Orchestrator) lookup(sessionID string) (*session, error) {
	o.mu.Lock()
	s, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if ok {
		return s, nil
	}
	// cold lookup: rehydrate from the store
	wf, err := o.store.GetWorkflow(sessionID)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[sessionID]; ok {
		return s, nil
	}
	s = &session{wf: wf}
	o.sessions[sessionID] = s
	return s, nil
}

func (o *Orchestrator) recordProjectLocked(s *session, clarSess *types.ClarificationSession) {
	title := ""
	if clarSess.Summary != nil {
		title = clarSess.Summary.Title
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled project"
	}
	p := &types.Project{
		ID:          newID("proj"),
		Name:        title,
		Domain:      s.wf.IdeaSeed.Domain,
		InitialIdea: s.wf.IdeaSeed.RawText,
		CreatedAt:   time.Now(),
	}
	s.wf.ProjectID = p.ID
	if err := o.store.PutProject(p); err != nil {
		log.Printf("workflow: persist project %s: %v", p.ID, err)
	}
}

func (o *Orchestrator) persistLocked(s *session) {
	s.wf.UpdatedAt = time.Now()
	if err := o.store.PutWorkflow(s.wf); err != nil {
		log.Printf("workflow: persist session %s: %v", s.wf.ID, err)
	}
}

func newID(prefix string) string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}
