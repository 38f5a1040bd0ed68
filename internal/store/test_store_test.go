package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/types"
)

func fileStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "sessions.json"))
}

func sampleWorkflow(id string) *types.WorkflowSession {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &types.WorkflowSession{
		ID:       id,
		State:    types.StateAdvIterating,
		IdeaSeed: types.IdeaSeed{RawText: "idea", Domain: "education"},
		Versions: []types.IterationVersion{
			{VersionNumber: 0, Content: "seed", CreatedAt: now},
			{VersionNumber: 1, Content: "refined", Scores: types.Scores{Novelty: 0.7, Feasibility: 0.8, Coherence: 0.8}, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWorkflowRoundTrip(t *testing.T) {
	s := fileStore(t)
	want := sampleWorkflow("wf_1")
	require.NoError(t, s.PutWorkflow(want))

	got, err := s.GetWorkflow("wf_1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetUnknownIsNotFound(t *testing.T) {
	s := fileStore(t)
	_, err := s.GetWorkflow("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = s.GetClarification("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = s.GetProject("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s := New(path)
	require.NoError(t, s.PutWorkflow(sampleWorkflow("wf_1")))
	require.NoError(t, s.PutProject(&types.Project{ID: "p_1", Name: "Tutoring"}))

	reopened := New(path)
	got, err := reopened.GetWorkflow("wf_1")
	require.NoError(t, err)
	assert.Equal(t, "wf_1", got.ID)
	assert.Len(t, got.Versions, 2)

	p, err := reopened.GetProject("p_1")
	require.NoError(t, err)
	assert.Equal(t, "Tutoring", p.Name)
}

func TestKindsAreIsolated(t *testing.T) {
	s := fileStore(t)
	require.NoError(t, s.PutWorkflow(sampleWorkflow("shared_id")))
	require.NoError(t, s.PutProject(&types.Project{ID: "shared_id", Name: "P"}))

	workflows, err := s.ListWorkflows()
	require.NoError(t, err)
	assert.Len(t, workflows, 1)

	projects, err := s.ListProjects()
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	require.NoError(t, s.DeleteWorkflow("shared_id"))
	_, err = s.GetWorkflow("shared_id")
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = s.GetProject("shared_id")
	assert.NoError(t, err)
}

func TestPutOverwrites(t *testing.T) {
	s := fileStore(t)
	sess := sampleWorkflow("wf_1")
	require.NoError(t, s.PutWorkflow(sess))

	sess.State = types.StateDone
	require.NoError(t, s.PutWorkflow(sess))

	got, err := s.GetWorkflow("wf_1")
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, got.State)
}

func TestEmptyIDRejected(t *testing.T) {
	s := fileStore(t)
	err := s.PutWorkflow(&types.WorkflowSession{})
	assert.Error(t, err)
}

func TestClarificationRoundTrip(t *testing.T) {
	s := fileStore(t)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	sess := &types.ClarificationSession{
		ID:       "clar_1",
		IdeaSeed: types.IdeaSeed{RawText: "idea"},
		Slots: map[string]*types.Slot{
			"target_user": {Name: "target_user", Importance: 9, QuestionTemplate: "Who?", Answer: "students", AnsweredAt: &now},
		},
		Order:     []string{"target_user"},
		Asked:     map[string]bool{"target_user": true},
		Status:    types.ClarificationCompleted,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.PutClarification(sess))
	got, err := s.GetClarification("clar_1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}
