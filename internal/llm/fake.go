package llm

import (
	"context"
	"encoding/json"
)

// FakeClient returns deterministic, minimal JSON payloads per role for
// offline use and tests.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	role := RoleFrom(ctx)
	var obj any
	switch role {
	case RoleClarifier:
		obj = map[string]any{
			"questions": []any{
				map[string]any{
					"slot_name":  "target_user",
					"question":   "Who is the target user for this idea?",
					"importance": 9,
				},
				map[string]any{
					"slot_name":  "core_pain",
					"question":   "What core pain point does it solve?",
					"importance": 9,
				},
				map[string]any{
					"slot_name":  "key_features",
					"question":   "What are the expected key feature areas?",
					"importance": 8,
				},
				map[string]any{
					"slot_name":  "success_metrics",
					"question":   "How will success be measured?",
					"importance": 7,
				},
			},
		}
	case RoleInnovator:
		obj = map[string]any{
			"deltas": []any{
				map[string]any{
					"content":     "Narrow the initial launch to a single user segment",
					"dimension":   "scope",
					"impact":      0.7,
					"feasibility": 0.9,
					"reasoning":   "fake innovator output",
				},
				map[string]any{
					"content":     "Add a lightweight feedback loop after each session",
					"dimension":   "user",
					"impact":      0.6,
					"feasibility": 0.8,
					"reasoning":   "fake innovator output",
				},
			},
		}
	case RoleCritic:
		obj = map[string]any{
			"verdict":  "accept",
			"severity": 0.2,
			"message":  "fake critic output",
		}
	case RoleSynthesizer:
		obj = map[string]any{
			"content":     "Refined draft merging the accepted improvements.",
			"key_changes": []string{"narrowed launch segment", "added feedback loop"},
			"novelty":     0.7,
			"feasibility": 0.85,
			"coherence":   0.8,
		}
	case RoleSummarizer:
		obj = map[string]any{
			"title":            "Concept summary",
			"refined_idea":     "Refined draft merging the accepted improvements.",
			"user_segments":    []string{"early adopters"},
			"core_pain_points": []string{"fragmented workflow"},
			"key_features":     []string{"guided refinement"},
			"constraints":      []string{},
			"success_metrics":  []string{"weekly active users"},
			"risks":            []string{},
			"next_steps":       []string{"validate with a pilot group"},
		}
	default:
		obj = map[string]any{}
	}
	b, _ := json.Marshal(obj)
	return json.RawMessage(b), nil
}
