package clarify

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"ideaforge/internal/llm"
	"ideaforge/internal/types"
)

// Persister stores clarification session snapshots. The engine works
// without one; the orchestrator wires the session store in.
type Persister interface {
	PutClarification(sess *types.ClarificationSession) error
}

// Config tunes engine behavior.
type Config struct {
	// IdleTimeout moves sessions with no activity to the expired status.
	// Zero disables expiry.
	IdleTimeout time.Duration
	// StrictFinish rejects finish while mandatory slots are unanswered.
	StrictFinish bool
	// MandatoryImportance is the importance at or above which a slot is
	// mandatory under StrictFinish.
	MandatoryImportance int
}

func (c Config) withDefaults() Config {
	if c.MandatoryImportance <= 0 {
		c.MandatoryImportance = 8
	}
	return c
}

// Engine drives the question/answer loop over unfilled slots.
type Engine struct {
	mu       sync.Mutex
	catalog  *Catalog
	llm      llm.Client
	persist  Persister
	cfg      Config
	sessions map[string]*types.ClarificationSession
	now      func() time.Time
}

// New creates an engine. client may be nil, in which case questions come
// from the catalog alone; persist may be nil.
func New(catalog *Catalog, client llm.Client, persist Persister, cfg Config) *Engine {
	return &Engine{
		catalog:  catalog,
		llm:      client,
		persist:  persist,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*types.ClarificationSession),
		now:      time.Now,
	}
}

// Start creates a clarification session and returns its first question.
// The first question is nil only when the catalog yields zero slots.
func (e *Engine) Start(ctx context.Context, seed types.IdeaSeed) (string, *types.QuestionView, error) {
	if strings.TrimSpace(seed.RawText) == "" {
		return "", nil, fmt.Errorf("%w: empty idea", types.ErrInvalidState)
	}

	slots := e.questionsFor(ctx, seed)
	now := e.now()
	sess := &types.ClarificationSession{
		ID:        newSessionID("clar"),
		IdeaSeed:  seed,
		Slots:     make(map[string]*types.Slot, len(slots)),
		Asked:     make(map[string]bool, len(slots)),
		Status:    types.ClarificationCollecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i := range slots {
		s := slots[i]
		sess.Slots[s.Name] = &s
		sess.Order = append(sess.Order, s.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[sess.ID] = sess
	first := e.selectNextLocked(sess)
	e.saveLocked(sess)
	return sess.ID, first, nil
}

// SubmitAnswer records an answer (overwrite semantics) and returns the
// next question, or completed=true when no unasked slots remain.
func (e *Engine) SubmitAnswer(sessionID, slotName, answer string) (*types.QuestionView, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, err := e.lookupLocked(sessionID)
	if err != nil {
		return nil, false, err
	}
	if sess.Status != types.ClarificationCollecting {
		return nil, false, fmt.Errorf("%w: session %s is %s", types.ErrInvalidState, sessionID, sess.Status)
	}
	slot, ok := sess.Slots[slotName]
	if !ok {
		return nil, false, fmt.Errorf("%w: slot %s", types.ErrNotFound, slotName)
	}

	now := e.now()
	slot.Answer = answer
	slot.AnsweredAt = &now
	sess.UpdatedAt = now
	sess.Messages = append(sess.Messages, types.Message{
		Role: "user", SlotName: slotName, Content: answer, Timestamp: now,
	})

	next := e.selectNextLocked(sess)
	e.saveLocked(sess)
	return next, next == nil, nil
}

// Status returns a point-in-time view of the session.
func (e *Engine) Status(sessionID string) (types.ClarificationView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, err := e.lookupLocked(sessionID)
	if err != nil {
		return types.ClarificationView{}, err
	}
	return viewOf(sess), nil
}

// Finish freezes the session and generates its summary. With strict
// finishing enabled, unanswered mandatory slots reject the call.
func (e *Engine) Finish(ctx context.Context, sessionID string) (*types.ClarificationSession, error) {
	e.mu.Lock()
	sess, err := e.lookupLocked(sessionID)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if sess.Status == types.ClarificationCompleted {
		snap := snapshot(sess)
		e.mu.Unlock()
		return snap, nil
	}
	if e.cfg.StrictFinish {
		for _, name := range sess.Order {
			s := sess.Slots[name]
			if s.Importance >= e.cfg.MandatoryImportance && !s.Answered() {
				e.mu.Unlock()
				return nil, fmt.Errorf("%w: mandatory slot %s unanswered", types.ErrInvalidState, name)
			}
		}
	}
	snap := snapshot(sess)
	e.mu.Unlock()

	// Summary generation happens outside the lock; the model call may be
	// slow and must not serialize other sessions.
	summary := e.generateSummary(ctx, snap)

	e.mu.Lock()
	defer e.mu.Unlock()
	sess, err = e.lookupLocked(sessionID)
	if err != nil {
		return nil, err
	}
	sess.Status = types.ClarificationCompleted
	sess.Summary = summary
	sess.UpdatedAt = e.now()
	e.saveLocked(sess)
	return snapshot(sess), nil
}

// AttachSummary replaces the session summary with a user-edited document.
func (e *Engine) AttachSummary(sessionID string, doc *types.SummaryDocument) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: clarification session %s", types.ErrNotFound, sessionID)
	}
	sess.Summary = doc
	sess.UpdatedAt = e.now()
	e.saveLocked(sess)
	return nil
}

// EnrichedIdea renders the raw idea plus the answered Q&A pairs into the
// text handed to the iteration stage.
func EnrichedIdea(sess *types.ClarificationSession) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(sess.IdeaSeed.RawText))
	var lines []string
	for _, name := range sess.Order {
		s := sess.Slots[name]
		if s.Answered() {
			lines = append(lines, fmt.Sprintf("- %s\n  A: %s", s.QuestionTemplate, s.Answer))
		}
	}
	if len(lines) > 0 {
		b.WriteString("\n\nClarifications:\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

// selectNextLocked picks the highest-importance unasked slot, breaking
// ties by catalog order, skipping any slot whose normalized question text
// was already asked in this session. Selected and skipped slots are both
// marked asked.
func (e *Engine) selectNextLocked(sess *types.ClarificationSession) *types.QuestionView {
	askedTexts := make(map[string]bool, len(sess.Asked))
	for name, asked := range sess.Asked {
		if asked {
			askedTexts[NormalizeQuestion(sess.Slots[name].QuestionTemplate)] = true
		}
	}

	candidates := make([]string, 0, len(sess.Order))
	for _, name := range sess.Order {
		if !sess.Asked[name] {
			candidates = append(candidates, name)
		}
	}
	// Stable sort keeps catalog order among equal importance.
	sort.SliceStable(candidates, func(i, j int) bool {
		return sess.Slots[candidates[i]].Importance > sess.Slots[candidates[j]].Importance
	})

	for _, name := range candidates {
		slot := sess.Slots[name]
		norm := NormalizeQuestion(slot.QuestionTemplate)
		if askedTexts[norm] {
			sess.Asked[name] = true // duplicate text, never re-asked
			continue
		}
		sess.Asked[name] = true
		sess.Messages = append(sess.Messages, types.Message{
			Role: "bot", SlotName: name, Content: slot.QuestionTemplate, Timestamp: e.now(),
		})
		return &types.QuestionView{
			SlotName:         name,
			Question:         slot.QuestionTemplate,
			Importance:       slot.Importance,
			SuggestedAnswers: slot.SuggestedAnswers,
		}
	}
	return nil
}

func (e *Engine) lookupLocked(sessionID string) (*types.ClarificationSession, error) {
	sess, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: clarification session %s", types.ErrNotFound, sessionID)
	}
	if sess.Status == types.ClarificationExpired {
		return nil, fmt.Errorf("%w: clarification session %s", types.ErrExpired, sessionID)
	}
	if e.cfg.IdleTimeout > 0 && sess.Status == types.ClarificationCollecting &&
		e.now().Sub(sess.UpdatedAt) > e.cfg.IdleTimeout {
		sess.Status = types.ClarificationExpired
		e.saveLocked(sess)
		return nil, fmt.Errorf("%w: clarification session %s", types.ErrExpired, sessionID)
	}
	return sess, nil
}

func (e *Engine) saveLocked(sess *types.ClarificationSession) {
	if e.persist == nil {
		return
	}
	if err := e.persist.PutClarification(snapshot(sess)); err != nil {
		log.Printf("clarify: persist session %s: %v", sess.ID, err)
	}
}

func viewOf(sess *types.ClarificationSession) types.ClarificationView {
	view := types.ClarificationView{
		SessionID: sess.ID,
		Status:    sess.Status,
		Messages:  append([]types.Message(nil), sess.Messages...),
		Summary:   sess.Summary,
	}
	for _, name := range sess.Order {
		s := sess.Slots[name]
		view.Questions = append(view.Questions, types.QuestionView{
			SlotName:         s.Name,
			Question:         s.QuestionTemplate,
			Importance:       s.Importance,
			SuggestedAnswers: s.SuggestedAnswers,
		})
		if !s.Answered() {
			view.Pending++
		}
	}
	return view
}

func snapshot(sess *types.ClarificationSession) *types.ClarificationSession {
	cp := *sess
	cp.Slots = make(map[string]*types.Slot, len(sess.Slots))
	for name, s := range sess.Slots {
		sc := *s
		cp.Slots[name] = &sc
	}
	cp.Order = append([]string(nil), sess.Order...)
	cp.Asked = make(map[string]bool, len(sess.Asked))
	for k, v := range sess.Asked {
		cp.Asked[k] = v
	}
	cp.Messages = append([]types.Message(nil), sess.Messages...)
	return &cp
}

func newSessionID(prefix string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + time.Now().UTC().Format("20060102_150405") + "_" + hex.EncodeToString(b[:])
}
