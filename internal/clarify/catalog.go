package clarify

import (
	"fmt"
	"strings"

	"ideaforge/internal/types"
)

// maxQuestions caps how many slots a single session asks about.
const maxQuestions = 10

// Catalog is the stateless registry of information slots. The base set is
// domain-agnostic; QuestionsFor adapts it with domain-specific additions.
type Catalog struct {
	base []types.Slot
}

// NewCatalog validates and returns the built-in catalog. A malformed
// catalog (duplicate names, importance out of range, duplicate question
// text) is a startup-time error.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{base: baseSlots()}
	if err := c.validate(c.base); err != nil {
		return nil, err
	}
	return c, nil
}

func baseSlots() []types.Slot {
	return []types.Slot{
		{Name: "target_user", Importance: 9, QuestionTemplate: "Who is the target user for this idea?"},
		{Name: "core_pain", Importance: 9, QuestionTemplate: "What core pain point does it solve?"},
		{Name: "key_features", Importance: 8, QuestionTemplate: "What are the expected key feature areas?"},
		{Name: "data_sources", Importance: 7, QuestionTemplate: "What data sources or prerequisites are available?"},
		{Name: "success_metrics", Importance: 7, QuestionTemplate: "How will success be measured?"},
		{Name: "constraints", Importance: 6, QuestionTemplate: "Are there budget, time, or compliance constraints?",
			SuggestedAnswers: []string{"budget-constrained", "time-constrained", "no hard constraints"}},
	}
}

// QuestionsFor returns the slot set relevant to the idea in catalog
// insertion order. Priority is used only for question selection, not for
// ordering here.
func (c *Catalog) QuestionsFor(seed types.IdeaSeed) []types.Slot {
	out := make([]types.Slot, 0, maxQuestions)
	text := strings.ToLower(seed.RawText + " " + seed.Domain + " " + strings.Join(seed.ContextHints, " "))

	if containsAny(text, "education", "learning", "tutoring", "school", "student") {
		out = append(out, types.Slot{Name: "education_stage", Importance: 10,
			QuestionTemplate: "Which education stage or age group is this for?"})
	}
	out = append(out, c.base...)
	if containsAny(text, "education", "learning", "tutoring", "school", "student") {
		out = append(out, types.Slot{Name: "personalization_basis", Importance: 7,
			QuestionTemplate: "What learning-style assumptions drive personalization?"})
	}
	if containsAny(text, "platform", "marketplace") {
		out = append(out, types.Slot{Name: "business_model", Importance: 7,
			QuestionTemplate: "What is the business model and pricing approach?"})
	}

	return dedupeSlots(out)
}

// dedupeSlots drops later slots with a repeated name or a question whose
// normalized text matches an earlier one, and caps the result. This guards
// against catalog overlap before the engine's own per-session dedup.
func dedupeSlots(slots []types.Slot) []types.Slot {
	seenNames := make(map[string]bool, len(slots))
	seenTexts := make(map[string]bool, len(slots))
	out := make([]types.Slot, 0, len(slots))
	for _, s := range slots {
		norm := NormalizeQuestion(s.QuestionTemplate)
		if norm == "" || seenNames[s.Name] || seenTexts[norm] {
			continue
		}
		seenNames[s.Name] = true
		seenTexts[norm] = true
		out = append(out, s)
		if len(out) == maxQuestions {
			break
		}
	}
	return out
}

func (c *Catalog) validate(slots []types.Slot) error {
	seenNames := make(map[string]bool, len(slots))
	seenTexts := make(map[string]bool, len(slots))
	for _, s := range slots {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("clarify: catalog slot with empty name")
		}
		if s.Importance < 1 || s.Importance > 10 {
			return fmt.Errorf("clarify: slot %s importance %d out of range", s.Name, s.Importance)
		}
		norm := NormalizeQuestion(s.QuestionTemplate)
		if norm == "" {
			return fmt.Errorf("clarify: slot %s has empty question", s.Name)
		}
		if seenNames[s.Name] {
			return fmt.Errorf("clarify: duplicate slot name %s", s.Name)
		}
		if seenTexts[norm] {
			return fmt.Errorf("clarify: duplicate question text for slot %s", s.Name)
		}
		seenNames[s.Name] = true
		seenTexts[norm] = true
	}
	return nil
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
