package prompt

import (
	"strings"
	"testing"

	"ideaforge/internal/tester"
)

func TestBuildRendersSections(t *testing.T) {
	spec := Spec{
		Purpose:      "Generate clarification questions for an idea.",
		Background:   "Slot-filling stage.",
		OutputFormat: "JSON only.",
		Language:     "English",
		OutputFields: []Field{
			{Name: "questions", Type: "[]object", Required: true, Description: "Question list."},
			{Name: "notes", Type: "[]string", Required: false},
		},
		Constraints: []string{"No markdown."},
		Rules:       []string{"Be concise."},
	}

	out, err := Build(spec)
	tester.NoErr(t, err)

	for _, section := range []string{"[PURPOSE]", "[BACKGROUND]", "[OUTPUT]", "[CONSTRAINTS]", "[RULES]", "[OUTPUT_FORMAT]", "[LANGUAGE]"} {
		tester.True(t, strings.Contains(out, section), section)
	}
	tester.True(t, strings.Contains(out, "questions ([]object, required): Question list."), "field line")
	tester.True(t, strings.Contains(out, "notes ([]string, optional)"), "optional field line")
}

func TestBuildRejectsEmptyPurpose(t *testing.T) {
	_, err := Build(Spec{OutputFields: []Field{{Name: "x", Type: "string"}}})
	if err == nil {
		t.Fatalf("expected error for empty purpose")
	}
}

func TestExtractJSONFenced(t *testing.T) {
	raw, ok := ExtractJSON("Here you go:\n```json\n{\"a\": 1}\n```\nthanks")
	tester.True(t, ok, "fenced block found")
	tester.Eq(t, string(raw), `{"a": 1}`)
}

func TestExtractJSONBalancedBraces(t *testing.T) {
	raw, ok := ExtractJSON(`noise {"a": {"b": 2}} trailing`)
	tester.True(t, ok, "braces found")
	tester.Eq(t, string(raw), `{"a": {"b": 2}}`)
}

func TestExtractJSONRejectsGarbage(t *testing.T) {
	_, ok := ExtractJSON("no json here")
	tester.False(t, ok, "nothing extractable")
	_, ok = ExtractJSON("{broken")
	tester.False(t, ok, "unbalanced")
}
