package clarify

import (
	"context"
	"log"
	"strings"

	"ideaforge/internal/llm"
	"ideaforge/internal/prompt"
	"ideaforge/internal/types"
)

var questionPrompt = prompt.MustBuild(prompt.Spec{
	Purpose:    "Generate clarifying questions that surface missing information about a product idea.",
	Background: "The input contains the raw idea text, an optional domain, and context hints.",
	OutputFields: []prompt.Field{
		{Name: "questions", Type: "array", Required: true,
			Description: "objects with slot_name (snake_case), question, importance (1-10)"},
	},
	Constraints: []string{
		"at most 10 questions",
		"each question targets exactly one missing piece of information",
		"importance reflects how blocking the gap is for refinement",
	},
	Rules: []string{
		"do not ask about information already present in the idea text",
		"slot_name must be a stable snake_case identifier",
	},
	OutputFormat: `{"questions":[{"slot_name":"...","question":"...","importance":1}]}`,
	Language:     "en",
})

var summaryPrompt = prompt.MustBuild(prompt.Spec{
	Purpose:    "Summarize a clarified product idea into a structured document.",
	Background: "The input contains the raw idea and the answered clarification Q&A pairs.",
	OutputFields: []prompt.Field{
		{Name: "title", Type: "string", Required: true},
		{Name: "refined_idea", Type: "string", Required: true, Description: "one paragraph restating the idea with the clarified details folded in"},
		{Name: "user_segments", Type: "array", Required: false},
		{Name: "core_pain_points", Type: "array", Required: false},
		{Name: "key_features", Type: "array", Required: false},
		{Name: "constraints", Type: "array", Required: false},
		{Name: "success_metrics", Type: "array", Required: false},
		{Name: "risks", Type: "array", Required: false},
		{Name: "next_steps", Type: "array", Required: false},
	},
	Rules: []string{
		"use only information from the input; do not invent facts",
	},
	OutputFormat: `{"title":"...","refined_idea":"...","user_segments":[],"core_pain_points":[],"key_features":[],"constraints":[],"success_metrics":[],"risks":[],"next_steps":[]}`,
	Language:     "en",
})

type generatedQuestion struct {
	SlotName   string `json:"slot_name"`
	Question   string `json:"question"`
	Importance int    `json:"importance"`
}

type generatedQuestions struct {
	Questions []generatedQuestion `json:"questions"`
}

// questionsFor asks the model for idea-specific questions and merges them
// ahead of the catalog set. Any model failure degrades to catalog-only.
func (e *Engine) questionsFor(ctx context.Context, seed types.IdeaSeed) []types.Slot {
	catalog := e.catalog.QuestionsFor(seed)
	if e.llm == nil {
		return catalog
	}

	var out generatedQuestions
	err := llm.GenerateAs(ctx, e.llm, llm.RoleClarifier, questionPrompt, seed, &out)
	if err != nil {
		log.Printf("clarify: question generation failed, using catalog: %v", err)
		return catalog
	}

	merged := make([]types.Slot, 0, len(out.Questions)+len(catalog))
	for _, q := range out.Questions {
		name := strings.TrimSpace(q.SlotName)
		text := strings.TrimSpace(q.Question)
		if name == "" || text == "" {
			continue
		}
		imp := q.Importance
		if imp < 1 {
			imp = 1
		}
		if imp > 10 {
			imp = 10
		}
		merged = append(merged, types.Slot{Name: name, Importance: imp, QuestionTemplate: text})
	}
	if len(merged) == 0 {
		return catalog
	}
	merged = append(merged, catalog...)
	return dedupeSlots(merged)
}

// generateSummary builds the clarification summary, falling back to a
// deterministic rendering when the model is unavailable.
func (e *Engine) generateSummary(ctx context.Context, sess *types.ClarificationSession) *types.SummaryDocument {
	if e.llm != nil {
		var doc types.SummaryDocument
		input := map[string]any{
			"idea":   sess.IdeaSeed.RawText,
			"domain": sess.IdeaSeed.Domain,
			"qa":     answeredPairs(sess),
		}
		err := llm.GenerateAs(ctx, e.llm, llm.RoleSummarizer, summaryPrompt, input, &doc)
		if err == nil && strings.TrimSpace(doc.RefinedIdea) != "" {
			if strings.TrimSpace(doc.Title) == "" {
				doc.Title = heuristicTitle(sess.IdeaSeed.RawText)
			}
			return &doc
		}
		log.Printf("clarify: summary generation failed, using heuristic: %v", err)
	}
	return heuristicSummary(sess)
}

func answeredPairs(sess *types.ClarificationSession) []map[string]string {
	var pairs []map[string]string
	for _, name := range sess.Order {
		s := sess.Slots[name]
		if s.Answered() {
			pairs = append(pairs, map[string]string{
				"slot":     s.Name,
				"question": s.QuestionTemplate,
				"answer":   s.Answer,
			})
		}
	}
	return pairs
}

// heuristicSummary maps well-known slots onto document sections and
// collects the rest under the refined idea text.
func heuristicSummary(sess *types.ClarificationSession) *types.SummaryDocument {
	doc := &types.SummaryDocument{
		Title:       heuristicTitle(sess.IdeaSeed.RawText),
		RefinedIdea: EnrichedIdea(sess),
	}
	answer := func(name string) string {
		if s, ok := sess.Slots[name]; ok && s.Answered() {
			return s.Answer
		}
		return ""
	}
	if v := answer("target_user"); v != "" {
		doc.UserSegments = []string{v}
	}
	if v := answer("core_pain"); v != "" {
		doc.CorePainPoints = []string{v}
	}
	if v := answer("key_features"); v != "" {
		doc.KeyFeatures = splitList(v)
	}
	if v := answer("constraints"); v != "" {
		doc.Constraints = splitList(v)
	}
	if v := answer("success_metrics"); v != "" {
		doc.SuccessMetrics = splitList(v)
	}
	return doc
}

func heuristicTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".!?\n"); i > 0 {
		raw = raw[:i]
	}
	const max = 80
	if len(raw) > max {
		raw = strings.TrimSpace(raw[:max])
	}
	if raw == "" {
		return "Untitled idea"
	}
	return raw
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
