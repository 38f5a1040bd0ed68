package types

import "time"

// IdeaSeed is the user's raw idea. Immutable once a session starts.
type IdeaSeed struct {
	RawText      string   `json:"raw_text"`
	ContextHints []string `json:"context_hints,omitempty"`
	Domain       string   `json:"domain,omitempty"`
}

// Slot is a named piece of information the clarifier needs before the
// idea can be iterated on. Importance is 1-10; 10 is asked first.
type Slot struct {
	Name             string     `json:"name"`
	Importance       int        `json:"importance"`
	QuestionTemplate string     `json:"question_template"`
	SuggestedAnswers []string   `json:"suggested_answers,omitempty"`
	Answer           string     `json:"answer,omitempty"`
	AnsweredAt       *time.Time `json:"answered_at,omitempty"`
}

func (s Slot) Answered() bool { return s.AnsweredAt != nil }

// ClarificationStatus is the lifecycle of a ClarificationSession.
type ClarificationStatus string

const (
	ClarificationCollecting ClarificationStatus = "collecting"
	ClarificationCompleted  ClarificationStatus = "completed"
	ClarificationExpired    ClarificationStatus = "expired"
)

// Message is one line of the clarification transcript.
type Message struct {
	Role      string    `json:"role"` // "bot" or "user"
	SlotName  string    `json:"slot_name,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ClarificationSession tracks slot filling for one idea.
type ClarificationSession struct {
	ID        string              `json:"id"`
	IdeaSeed  IdeaSeed            `json:"idea_seed"`
	Slots     map[string]*Slot    `json:"slots"`
	Order     []string            `json:"order"` // catalog insertion order of slot names
	Asked     map[string]bool     `json:"asked"`
	Messages  []Message           `json:"messages,omitempty"`
	Status    ClarificationStatus `json:"status"`
	Summary   *SummaryDocument    `json:"summary,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Scores are the three iteration quality dimensions, each in [0,1].
type Scores struct {
	Novelty     float64 `json:"novelty"`
	Feasibility float64 `json:"feasibility"`
	Coherence   float64 `json:"coherence"`
}

// Mean aggregates the three dimensions for convergence checks.
func (s Scores) Mean() float64 {
	return (s.Novelty + s.Feasibility + s.Coherence) / 3
}

// IterationVersion is one entry of the append-only version history.
// Version 0 is the seed-derived draft; later versions are produced by
// iteration rounds and never mutated after creation.
type IterationVersion struct {
	VersionNumber int       `json:"version_number"`
	Content       string    `json:"content"`
	KeyChanges    []string  `json:"key_changes,omitempty"`
	Scores        Scores    `json:"scores"`
	CreatedAt     time.Time `json:"created_at"`
}

// ClaimStatus classifies a claim against retrieved evidence.
type ClaimStatus string

const (
	ClaimSupported          ClaimStatus = "supported"
	ClaimPartiallySupported ClaimStatus = "partially_supported"
	ClaimUnsupported        ClaimStatus = "unsupported"
	ClaimNeedsClarification ClaimStatus = "needs_clarification"
)

// VerificationReport is produced once per workflow session.
type VerificationReport struct {
	LogicalConsistency float64  `json:"logical_consistency"`
	FactualAccuracy    float64  `json:"factual_accuracy"`
	Feasibility        float64  `json:"feasibility"`
	RiskAssessment     float64  `json:"risk_assessment"`
	OverallScore       float64  `json:"overall_score"`
	CriticalIssues     []string `json:"critical_issues,omitempty"`
	Recommendations    []string `json:"recommendations,omitempty"`
}

// SummaryDocument is the user-editable rendering of the verified result.
type SummaryDocument struct {
	Title          string   `json:"title"`
	RefinedIdea    string   `json:"refined_idea"`
	UserSegments   []string `json:"user_segments,omitempty"`
	CorePainPoints []string `json:"core_pain_points,omitempty"`
	KeyFeatures    []string `json:"key_features,omitempty"`
	Constraints    []string `json:"constraints,omitempty"`
	SuccessMetrics []string `json:"success_metrics,omitempty"`
	Risks          []string `json:"risks,omitempty"`
	NextSteps      []string `json:"next_steps,omitempty"`
}

// WorkflowSession is the top-level aggregate and the unit of concurrency
// control. It is owned exclusively by the orchestrator task driving it;
// everything else refers to it by ID.
type WorkflowSession struct {
	ID              string              `json:"id"`
	State           SessionState        `json:"state"`
	IdeaSeed        IdeaSeed            `json:"idea_seed"`
	ClarificationID string              `json:"clarification_id,omitempty"`
	ProjectID       string              `json:"project_id,omitempty"`
	Versions        []IterationVersion  `json:"versions,omitempty"`
	Verification    *VerificationReport `json:"verification,omitempty"`
	Summary         *SummaryDocument    `json:"summary,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// LastVersion returns the newest version, or nil when none exist yet.
func (w *WorkflowSession) LastVersion() *IterationVersion {
	if w == nil || len(w.Versions) == 0 {
		return nil
	}
	return &w.Versions[len(w.Versions)-1]
}

// Project links a clarification session to its workflow runs.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Domain      string    `json:"domain,omitempty"`
	InitialIdea string    `json:"initial_idea,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
