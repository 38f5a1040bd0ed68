// Package summary turns a verified iteration result into the
// user-editable summary document. Rendering is a deterministic
// structural transform with no model calls.
package summary

import (
	"fmt"
	"strings"

	"ideaforge/internal/types"
)

// Render builds the document from the final version and its verification
// report. base, when present, carries the clarification-stage summary
// whose sections survive into the final document.
func Render(version types.IterationVersion, report *types.VerificationReport, base *types.SummaryDocument) *types.SummaryDocument {
	doc := &types.SummaryDocument{
		RefinedIdea: version.Content,
	}
	if base != nil {
		doc.Title = base.Title
		doc.UserSegments = append([]string(nil), base.UserSegments...)
		doc.CorePainPoints = append([]string(nil), base.CorePainPoints...)
		doc.Constraints = append([]string(nil), base.Constraints...)
		doc.SuccessMetrics = append([]string(nil), base.SuccessMetrics...)
		doc.KeyFeatures = append([]string(nil), base.KeyFeatures...)
	}
	if doc.Title == "" {
		doc.Title = titleOf(version.Content)
	}
	doc.KeyFeatures = mergeUnique(doc.KeyFeatures, version.KeyChanges)

	if report != nil {
		doc.Risks = append([]string(nil), report.CriticalIssues...)
		doc.NextSteps = append([]string(nil), report.Recommendations...)
		if report.OverallScore < 0.5 {
			doc.NextSteps = append(doc.NextSteps, "revisit the flagged claims before committing resources")
		}
	}
	return doc
}

// ValidateEdit checks a user-submitted document before it is accepted.
func ValidateEdit(doc *types.SummaryDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: missing summary document", types.ErrInvalidState)
	}
	if strings.TrimSpace(doc.RefinedIdea) == "" {
		return fmt.Errorf("%w: refined_idea is empty", types.ErrInvalidState)
	}
	return nil
}

func titleOf(content string) string {
	content = strings.TrimSpace(content)
	if i := strings.IndexAny(content, ".!?\n"); i > 0 {
		content = content[:i]
	}
	const max = 80
	if len(content) > max {
		content = strings.TrimSpace(content[:max])
	}
	if content == "" {
		return "Untitled idea"
	}
	return content
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(s))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
