package clarify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ideaforge/internal/tester"
	"ideaforge/internal/types"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	cat, err := NewCatalog()
	tester.NoErr(t, err)
	return New(cat, nil, nil, cfg)
}

func seed() types.IdeaSeed {
	return types.IdeaSeed{RawText: "An app that helps remote teams run async standups."}
}

func TestStartAsksHighestImportanceFirst(t *testing.T) {
	e := newTestEngine(t, Config{})
	id, first, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)
	tester.True(t, id != "")
	tester.True(t, first != nil)
	tester.Eq(t, first.SlotName, "target_user")
	tester.Eq(t, first.Importance, 9)
}

func TestStartRejectsEmptyIdea(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, _, err := e.Start(context.Background(), types.IdeaSeed{RawText: "   "})
	tester.ErrIs(t, err, types.ErrInvalidState)
}

func TestDomainSlotsTakePriority(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, first, err := e.Start(context.Background(), types.IdeaSeed{
		RawText: "A tutoring platform for students.", Domain: "education",
	})
	tester.NoErr(t, err)
	tester.Eq(t, first.SlotName, "education_stage")
}

func TestAnswerFlowRunsToCompletion(t *testing.T) {
	e := newTestEngine(t, Config{})
	id, q, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)

	seen := map[string]bool{}
	for q != nil {
		tester.False(t, seen[q.SlotName], "question repeated: "+q.SlotName)
		seen[q.SlotName] = true
		var done bool
		q, done, err = e.SubmitAnswer(id, q.SlotName, "answer for "+q.SlotName)
		tester.NoErr(t, err)
		tester.Eq(t, done, q == nil)
	}
	tester.Eq(t, len(seen), 6) // base catalog size

	view, err := e.Status(id)
	tester.NoErr(t, err)
	tester.Eq(t, view.Pending, 0)
	tester.Eq(t, view.Status, types.ClarificationCollecting)
	// transcript alternates bot question / user answer
	tester.Eq(t, len(view.Messages), 12)
}

func TestAnswerOverwriteDoesNotReask(t *testing.T) {
	e := newTestEngine(t, Config{})
	id, first, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)

	next, _, err := e.SubmitAnswer(id, first.SlotName, "developers")
	tester.NoErr(t, err)
	tester.True(t, next != nil)

	again, _, err := e.SubmitAnswer(id, first.SlotName, "designers")
	tester.NoErr(t, err)
	// the overwritten slot is not re-queued; selection moves on
	tester.True(t, again == nil || again.SlotName != first.SlotName)

	view, err := e.Status(id)
	tester.NoErr(t, err)
	tester.Eq(t, view.Pending, 5) // only target_user is answered
}

func TestUnknownSlotIsNotFound(t *testing.T) {
	e := newTestEngine(t, Config{})
	id, _, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)
	_, _, err = e.SubmitAnswer(id, "no_such_slot", "x")
	tester.ErrIs(t, err, types.ErrNotFound)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	e := newTestEngine(t, Config{})
	_, err := e.Status("clar_missing")
	tester.ErrIs(t, err, types.ErrNotFound)
}

func TestStrictFinishRequiresMandatorySlots(t *testing.T) {
	e := newTestEngine(t, Config{StrictFinish: true})
	id, _, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)

	_, err = e.Finish(context.Background(), id)
	tester.ErrIs(t, err, types.ErrInvalidState)

	for _, name := range []string{"target_user", "core_pain", "key_features"} {
		_, _, err = e.SubmitAnswer(id, name, "answer")
		tester.NoErr(t, err)
	}
	sess, err := e.Finish(context.Background(), id)
	tester.NoErr(t, err)
	tester.Eq(t, sess.Status, types.ClarificationCompleted)
}

func TestFinishBuildsHeuristicSummary(t *testing.T) {
	e := newTestEngine(t, Config{})
	id, _, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)
	_, _, err = e.SubmitAnswer(id, "target_user", "distributed engineering teams")
	tester.NoErr(t, err)
	_, _, err = e.SubmitAnswer(id, "key_features", "daily digest, slack integration")
	tester.NoErr(t, err)

	sess, err := e.Finish(context.Background(), id)
	tester.NoErr(t, err)
	tester.True(t, sess.Summary != nil)
	tester.Eq(t, sess.Summary.UserSegments, []string{"distributed engineering teams"})
	tester.Eq(t, sess.Summary.KeyFeatures, []string{"daily digest", "slack integration"})
	tester.True(t, sess.Summary.Title != "")

	// finish is idempotent
	again, err := e.Finish(context.Background(), id)
	tester.NoErr(t, err)
	tester.Eq(t, again.Status, types.ClarificationCompleted)
}

func TestSubmitAfterFinishRejected(t *testing.T) {
	e := newTestEngine(t, Config{})
	id, _, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)
	_, err = e.Finish(context.Background(), id)
	tester.NoErr(t, err)
	_, _, err = e.SubmitAnswer(id, "target_user", "too late")
	tester.ErrIs(t, err, types.ErrInvalidState)
}

func TestIdleSessionExpires(t *testing.T) {
	e := newTestEngine(t, Config{IdleTimeout: time.Minute})
	id, _, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)

	base := time.Now()
	e.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, _, err = e.SubmitAnswer(id, "target_user", "x")
	tester.ErrIs(t, err, types.ErrExpired)
	// expiry is sticky
	_, err = e.Status(id)
	tester.ErrIs(t, err, types.ErrExpired)
}

func TestEnrichedIdeaIncludesAnswers(t *testing.T) {
	e := newTestEngine(t, Config{})
	id, _, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)
	_, _, err = e.SubmitAnswer(id, "core_pain", "standups eat meeting time")
	tester.NoErr(t, err)
	sess, err := e.Finish(context.Background(), id)
	tester.NoErr(t, err)

	enriched := EnrichedIdea(sess)
	tester.True(t, len(enriched) > len(seed().RawText))
	tester.True(t, containsAny(enriched, "standups eat meeting time"))
	tester.True(t, containsAny(enriched, "Clarifications:"))
}

type stubQuestionClient struct{ payload any }

func (s *stubQuestionClient) Name() string { return "stub" }
func (s *stubQuestionClient) Close() error { return nil }
func (s *stubQuestionClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	b, _ := json.Marshal(s.payload)
	return b, nil
}

func TestGeneratedDuplicateQuestionsDeduped(t *testing.T) {
	cat, err := NewCatalog()
	tester.NoErr(t, err)
	// same text as the catalog's target_user slot, different name and casing
	client := &stubQuestionClient{payload: map[string]any{
		"questions": []any{
			map[string]any{"slot_name": "audience", "question": "Who is the TARGET user for this idea?!", "importance": 10},
			map[string]any{"slot_name": "scale", "question": "How many users do you expect in year one?", "importance": 6},
		},
	}}
	e := New(cat, client, nil, Config{})

	id, first, err := e.Start(context.Background(), seed())
	tester.NoErr(t, err)
	tester.Eq(t, first.SlotName, "audience")

	view, err := e.Status(id)
	tester.NoErr(t, err)
	names := map[string]bool{}
	texts := map[string]bool{}
	for _, q := range view.Questions {
		names[q.SlotName] = true
		tester.False(t, texts[NormalizeQuestion(q.Question)], "duplicate question text survived dedup")
		texts[NormalizeQuestion(q.Question)] = true
	}
	tester.True(t, names["scale"])
	tester.False(t, names["target_user"]) // shadowed by the generated duplicate
}
