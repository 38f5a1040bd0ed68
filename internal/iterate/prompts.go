package iterate

import "ideaforge/internal/prompt"

var innovatorPrompt = prompt.MustBuild(prompt.Spec{
	Purpose:    "Propose incremental improvements (deltas) to the current idea draft.",
	Background: "The input carries the current draft, its scores, and the shortfall per scoring dimension. Target the weakest dimensions first.",
	OutputFields: []prompt.Field{
		{Name: "deltas", Type: "array", Required: true,
			Description: "objects with content, dimension (novelty|feasibility|coherence|scope|user), impact (0-1), feasibility (0-1), reasoning"},
	},
	Constraints: []string{
		"2 to 5 deltas",
		"each delta is one self-contained change, not a rewrite",
	},
	Rules: []string{
		"do not repeat changes already present in the draft",
	},
	OutputFormat: `{"deltas":[{"content":"...","dimension":"...","impact":0.5,"feasibility":0.5,"reasoning":"..."}]}`,
	Language:     "en",
})

var criticPrompt = prompt.MustBuild(prompt.Spec{
	Purpose:    "Critique one proposed delta against the current draft.",
	Background: "The input carries the current draft and a single delta. Judge the delta, not the draft.",
	OutputFields: []prompt.Field{
		{Name: "verdict", Type: "string", Required: true,
			Description: "one of accept, logical_flaw, feasibility_concern, new_risk, low_value"},
		{Name: "severity", Type: "number", Required: true, Description: "0-1; 0 for accept"},
		{Name: "message", Type: "string", Required: true},
		{Name: "resolution", Type: "string", Required: false,
			Description: "a concrete amendment that would make a flawed delta acceptable"},
	},
	Rules: []string{
		"accept only deltas that improve the draft as written",
		"supply a resolution only when a small amendment fixes the problem",
	},
	OutputFormat: `{"verdict":"accept","severity":0.0,"message":"...","resolution":""}`,
	Language:     "en",
})

var synthPrompt = prompt.MustBuild(prompt.Spec{
	Purpose:    "Merge the surviving deltas into the current draft and score the result.",
	Background: "The input carries the current draft, the deltas that passed critique, and the full critique set for context.",
	OutputFields: []prompt.Field{
		{Name: "content", Type: "string", Required: true, Description: "the complete next draft"},
		{Name: "key_changes", Type: "array", Required: true, Description: "short labels for what changed"},
		{Name: "novelty", Type: "number", Required: true, Description: "0-1"},
		{Name: "feasibility", Type: "number", Required: true, Description: "0-1"},
		{Name: "coherence", Type: "number", Required: true, Description: "0-1"},
	},
	Rules: []string{
		"preserve everything in the draft the deltas do not touch",
		"apply deltas with a resolution in their amended form",
	},
	OutputFormat: `{"content":"...","key_changes":["..."],"novelty":0.5,"feasibility":0.5,"coherence":0.5}`,
	Language:     "en",
})
