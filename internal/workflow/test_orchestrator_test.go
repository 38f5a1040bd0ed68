package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/clarify"
	"ideaforge/internal/eventbus"
	"ideaforge/internal/iterate"
	"ideaforge/internal/llm"
	"ideaforge/internal/store"
	"ideaforge/internal/types"
	"ideaforge/internal/verify"
)

func testSeed() types.IdeaSeed {
	return types.IdeaSeed{
		RawText:      "A peer tutoring marketplace for high-school math",
		ContextHints: []string{"budget-constrained"},
		Domain:       "education",
	}
}

func newOrchestrator(t *testing.T, client llm.Client, strict bool) (*Orchestrator, *eventbus.Bus) {
	t.Helper()
	cat, err := clarify.NewCatalog()
	require.NoError(t, err)

	st := store.New(filepath.Join(t.TempDir(), "sessions.json"))
	bus := eventbus.New(200)
	clarifier := clarify.New(cat, nil, st, clarify.Config{})
	iterator := iterate.New(client, iterate.Config{})
	verifier, err := verify.New(nil, verify.NullSource{}, verify.Config{Strict: strict})
	require.NoError(t, err)

	o := New(clarifier, iterator, verifier, st, nil, bus, Config{
		Policy:          iterate.PolicyConfig{MaxRounds: 4, MinImprovement: 0.01},
		RoundAttempts:   2,
		RoundRetryDelay: time.Millisecond,
	})
	return o, bus
}

// answerAll drives the question loop to completion.
func answerAll(t *testing.T, o *Orchestrator, id string, first *types.QuestionView) {
	t.Helper()
	q := first
	for q != nil {
		next, done, err := o.SubmitAnswer(id, q.SlotName, "answer for "+q.SlotName)
		require.NoError(t, err)
		q = next
		if done {
			require.Nil(t, q)
		}
	}
}

func TestEndToEndReachesDone(t *testing.T) {
	o, _ := newOrchestrator(t, llm.NewFakeClient(), false)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	require.NotNil(t, first)

	answerAll(t, o, id, first)
	wfID, err := o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, wfID)

	o.Wait()
	view, err := o.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, view.State)
	assert.Equal(t, 100, view.Progress)
	require.NotNil(t, view.Verification)
	require.NotNil(t, view.LastVersion)

	sv, err := o.Summary(wfID)
	require.NoError(t, err)
	assert.NotEmpty(t, sv.Summary.RefinedIdea)

	// version numbers are contiguous and start at 0
	sess, err := o.store.GetWorkflow(wfID)
	require.NoError(t, err)
	for i, v := range sess.Versions {
		assert.Equal(t, i, v.VersionNumber)
	}
	assert.True(t, len(sess.Versions) >= 2) // seed plus at least one round
}

func TestEventsCoverLifecycle(t *testing.T) {
	o, bus := newOrchestrator(t, llm.NewFakeClient(), false)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	answerAll(t, o, id, first)
	_, err = o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	o.Wait()

	seen := map[string]bool{}
	var lastID uint64
	for _, ev := range bus.History("", 0) {
		assert.Greater(t, ev.ID, lastID) // monotonic, ordered
		lastID = ev.ID
		seen[ev.Type] = true
	}
	assert.True(t, seen[eventbus.TopicWorkflowStarted])
	assert.True(t, seen[eventbus.TopicWorkflowProgress])
	assert.True(t, seen[eventbus.TopicWorkflowCompleted])
}

func TestRestartFromEditedSummary(t *testing.T) {
	o, _ := newOrchestrator(t, llm.NewFakeClient(), false)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	answerAll(t, o, id, first)
	wfID, err := o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	o.Wait()

	edited := &types.SummaryDocument{
		Title:       "Edited",
		RefinedIdea: "A tutoring co-op run by the students themselves.",
	}
	newID, err := o.SubmitSummary(wfID, edited, true)
	require.NoError(t, err)
	assert.NotEqual(t, wfID, newID)

	o.Wait()
	sess, err := o.store.GetWorkflow(newID)
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, sess.State)
	assert.Equal(t, edited.RefinedIdea, sess.Versions[0].Content)
	// clarification history stays attached for audit
	assert.NotEmpty(t, sess.ClarificationID)
}

func TestSubmitSummaryWithoutRestartKeepsSession(t *testing.T) {
	o, _ := newOrchestrator(t, llm.NewFakeClient(), false)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	answerAll(t, o, id, first)
	wfID, err := o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	o.Wait()

	got, err := o.SubmitSummary(wfID, &types.SummaryDocument{RefinedIdea: "edited text"}, false)
	require.NoError(t, err)
	assert.Equal(t, wfID, got)

	sv, err := o.Summary(wfID)
	require.NoError(t, err)
	assert.Equal(t, "edited text", sv.Summary.RefinedIdea)
}

type downClient struct{}

func (downClient) Name() string { return "down" }
func (downClient) Close() error { return nil }
func (downClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	return nil, types.ErrProviderUnavailable
}

func TestProviderOutageReachesErrorWithVersionsIntact(t *testing.T) {
	o, bus := newOrchestrator(t, downClient{}, false)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	answerAll(t, o, id, first)
	wfID, err := o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	o.Wait()

	view, err := o.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, types.StateError, view.State)

	sess, err := o.store.GetWorkflow(wfID)
	require.NoError(t, err)
	assert.Len(t, sess.Versions, 1) // only the seed; the failed round appended nothing

	failed := bus.History(eventbus.TopicWorkflowFailed, 0)
	require.NotEmpty(t, failed)

	// the errored session can still be stopped and inspected
	require.NoError(t, o.Stop(wfID))
	view, err = o.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, types.StateStopped, view.State)
	_, _, err = o.SubmitAnswer(wfID, "target_user", "x")
	assert.True(t, errors.Is(err, types.ErrInvalidState))
}

// gatedClient blocks innovator calls until released, letting tests pause
// a session while a round is in flight.
type gatedClient struct {
	next llm.Client
	gate chan struct{}
	once sync.Once
}

func (c *gatedClient) Name() string { return "gated" }
func (c *gatedClient) Close() error { return nil }
func (c *gatedClient) Release()     { c.once.Do(func() { close(c.gate) }) }
func (c *gatedClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if llm.RoleFrom(ctx) == llm.RoleInnovator {
		<-c.gate
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

func TestPauseMidRoundDiscardsResult(t *testing.T) {
	gated := &gatedClient{next: llm.NewFakeClient(), gate: make(chan struct{})}
	o, _ := newOrchestrator(t, gated, false)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	answerAll(t, o, id, first)
	wfID, err := o.FinishClarification(context.Background(), id)
	require.NoError(t, err)

	// the driver is now blocked inside round 1
	require.NoError(t, o.Pause(wfID))
	gated.Release()
	o.Wait()

	sess, err := o.store.GetWorkflow(wfID)
	require.NoError(t, err)
	assert.Equal(t, types.StatePaused, sess.State)
	assert.Len(t, sess.Versions, 1) // in-flight round result was discarded

	// resuming does not duplicate the discarded version
	require.NoError(t, o.Resume(wfID))
	o.Wait()
	sess, err = o.store.GetWorkflow(wfID)
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, sess.State)
	for i, v := range sess.Versions {
		assert.Equal(t, i, v.VersionNumber)
	}
}

// Resuming right after the gate opens races the relaunch against the
// driver observing the pause and exiting. Whichever side wins, the
// session must keep a live driver and finish; a quiet stall in
// ADV_ITERATING here means the relaunch saw a stale driving flag.
func TestResumeAfterDiscardedRoundRelaunchesDriver(t *testing.T) {
	for i := 0; i < 10; i++ {
		gated := &gatedClient{next: llm.NewFakeClient(), gate: make(chan struct{})}
		o, _ := newOrchestrator(t, gated, false)

		id, first, err := o.StartClarification(context.Background(), testSeed())
		require.NoError(t, err)
		answerAll(t, o, id, first)
		wfID, err := o.FinishClarification(context.Background(), id)
		require.NoError(t, err)

		require.NoError(t, o.Pause(wfID))
		gated.Release()
		require.NoError(t, o.Resume(wfID))
		o.Wait()

		sess, err := o.store.GetWorkflow(wfID)
		require.NoError(t, err)
		require.Equal(t, types.StateDone, sess.State)
	}
}

func TestStatusReportsStageProgress(t *testing.T) {
	o, _ := newOrchestrator(t, llm.NewFakeClient(), false)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	view, err := o.Status(id)
	require.NoError(t, err)
	assert.Equal(t, types.StateClarifying, view.State)
	assert.Equal(t, 10, view.Progress)

	answerAll(t, o, id, first)
	_, err = o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	o.Wait()

	view, err = o.Status(id)
	require.NoError(t, err)
	assert.Equal(t, 100, view.Progress)
}

func TestPauseRejectedWhenTerminal(t *testing.T) {
	o, _ := newOrchestrator(t, llm.NewFakeClient(), false)
	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	answerAll(t, o, id, first)
	wfID, err := o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	o.Wait()

	err = o.Pause(wfID)
	assert.True(t, errors.Is(err, types.ErrInvalidState))
	err = o.Stop(wfID) // DONE is terminal, stop only applies to PAUSED/ERROR
	assert.True(t, errors.Is(err, types.ErrInvalidState))
}

// absolutistClient makes the synthesizer emit unverifiable absolute
// claims so strict verification trips.
type absolutistClient struct{ next llm.Client }

func (c *absolutistClient) Name() string { return "absolutist" }
func (c *absolutistClient) Close() error { return nil }
func (c *absolutistClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if llm.RoleFrom(ctx) == llm.RoleSynthesizer {
		return json.Marshal(map[string]any{
			"content":     "Every competitor always charges 50 dollars more than this platform will.",
			"key_changes": []string{"pricing claim"},
			"novelty":     0.7,
			"feasibility": 0.8,
			"coherence":   0.8,
		})
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

func TestStrictVerificationRoutesToManualResolution(t *testing.T) {
	o, bus := newOrchestrator(t, &absolutistClient{next: llm.NewFakeClient()}, true)

	id, first, err := o.StartClarification(context.Background(), testSeed())
	require.NoError(t, err)
	answerAll(t, o, id, first)
	wfID, err := o.FinishClarification(context.Background(), id)
	require.NoError(t, err)
	o.Wait()

	// no ERROR transition: the session awaits a manual decision
	view, err := o.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, types.StateAdvIterating, view.State)
	require.NotNil(t, view.Verification)
	assert.NotEmpty(t, view.Verification.CriticalIssues)
	require.NotEmpty(t, bus.History(eventbus.TopicWorkflowFailed, 0))

	// accepting the report completes the pipeline
	require.NoError(t, o.ResolveVerification(wfID, true))
	o.Wait()
	view, err = o.Status(wfID)
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, view.State)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	o, _ := newOrchestrator(t, llm.NewFakeClient(), false)
	_, err := o.Status("wf_missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	err = o.Pause("wf_missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
