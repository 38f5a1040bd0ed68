package verify

import (
	"context"
	"log"
	"strings"
	"unicode"

	"ideaforge/internal/llm"
	"ideaforge/internal/prompt"
	"ideaforge/internal/types"
)

// ClaimKind buckets a claim for category scoring.
type ClaimKind string

const (
	ClaimFactual     ClaimKind = "factual"
	ClaimLogical     ClaimKind = "logical"
	ClaimFeasibility ClaimKind = "feasibility"
	ClaimGeneral     ClaimKind = "general"
)

// Claim is one discrete statement extracted from a version's content.
type Claim struct {
	Text       string            `json:"text"`
	Kind       ClaimKind         `json:"kind"`
	Importance float64           `json:"importance"`
	Status     types.ClaimStatus `json:"status,omitempty"`
}

var claimPrompt = prompt.MustBuild(prompt.Spec{
	Purpose:    "Decompose an idea draft into discrete factual and logical claims.",
	Background: "Each claim must be checkable in isolation.",
	OutputFields: []prompt.Field{
		{Name: "claims", Type: "array", Required: true,
			Description: "objects with text, kind (factual|logical|feasibility|general), importance (0-1)"},
	},
	Constraints: []string{"at most 20 claims"},
	OutputFormat: `{"claims":[{"text":"...","kind":"factual","importance":0.5}]}`,
	Language:     "en",
})

type claimReply struct {
	Claims []Claim `json:"claims"`
}

// decompose extracts claims from content, model-assisted when a client is
// configured, with the sentence heuristic as fallback.
func (e *Engine) decompose(ctx context.Context, content string) []Claim {
	if e.client != nil {
		var out claimReply
		err := llm.GenerateAs(ctx, e.client, llm.RoleVerifier, claimPrompt, map[string]any{"content": content}, &out)
		if err == nil {
			claims := make([]Claim, 0, len(out.Claims))
			for _, c := range out.Claims {
				if strings.TrimSpace(c.Text) == "" {
					continue
				}
				if c.Kind == "" {
					c.Kind = classifyClaim(c.Text)
				}
				if c.Importance <= 0 {
					c.Importance = importanceOf(c.Text)
				}
				claims = append(claims, c)
			}
			if len(claims) > 0 {
				return claims
			}
		} else {
			log.Printf("verify: claim decomposition fell back to heuristic: %v", err)
		}
	}
	return heuristicClaims(content)
}

// heuristicClaims splits content into sentences and keeps the ones long
// enough to carry a checkable statement.
func heuristicClaims(content string) []Claim {
	var claims []Claim
	for _, s := range splitSentences(content) {
		if len(s) < 20 {
			continue
		}
		claims = append(claims, Claim{
			Text:       s,
			Kind:       classifyClaim(s),
			Importance: importanceOf(s),
		})
		if len(claims) == 20 {
			break
		}
	}
	return claims
}

func splitSentences(content string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	for _, r := range content {
		switch r {
		case '.', '!', '?', '\n':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

func classifyClaim(s string) ClaimKind {
	lc := strings.ToLower(s)
	switch {
	case containsAny(lc, "because", "therefore", "so that", "which means", "implies"):
		return ClaimLogical
	case containsAny(lc, "build", "implement", "integrate", "deploy", "launch", "develop"):
		return ClaimFeasibility
	case hasDigit(lc) || containsAny(lc, "market", "users", "revenue", "cost", "research shows", "studies"):
		return ClaimFactual
	default:
		return ClaimGeneral
	}
}

// importanceOf rates a claim by how load-bearing it reads: absolutes and
// quantified statements carry more weight than hedged ones.
func importanceOf(s string) float64 {
	lc := strings.ToLower(s)
	imp := 0.5
	if containsAny(lc, "all ", "every ", "always", "never", "guaranteed", "no competitor", "the only") {
		imp += 0.3
	}
	if hasDigit(lc) {
		imp += 0.2
	}
	if containsAny(lc, "might", "could", "perhaps", "may ") {
		imp -= 0.2
	}
	return clamp01(imp)
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
