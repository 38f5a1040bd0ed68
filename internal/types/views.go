package types

// Per-stage views returned to the client layer. Each stage gets its own
// typed shape instead of an untyped property bag.

// QuestionView is one pending question presented to the user.
type QuestionView struct {
	SlotName         string   `json:"slot_name"`
	Question         string   `json:"question"`
	Importance       int      `json:"importance"`
	SuggestedAnswers []string `json:"suggested_answers,omitempty"`
}

// ClarificationView is the snapshot returned by status calls.
type ClarificationView struct {
	SessionID string              `json:"session_id"`
	Status    ClarificationStatus `json:"status"`
	Questions []QuestionView      `json:"questions"`
	Pending   int                 `json:"pending"`
	Messages  []Message           `json:"messages,omitempty"`
	Summary   *SummaryDocument    `json:"summary,omitempty"`
}

// WorkflowView is the snapshot returned by workflow status calls.
type WorkflowView struct {
	SessionID    string              `json:"session_id"`
	State        SessionState        `json:"state"`
	Progress     int                 `json:"progress"`
	LastVersion  *IterationVersion   `json:"last_version,omitempty"`
	Verification *VerificationReport `json:"verification,omitempty"`
}

// SummaryView pairs the rendered summary with its originating session.
type SummaryView struct {
	SessionID string           `json:"session_id"`
	Summary   *SummaryDocument `json:"summary"`
}
