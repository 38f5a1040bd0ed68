package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field describes a single output field in a simple schema.
type Field struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

// Spec defines the sections for a structured prompt.
type Spec struct {
	Purpose      string
	Background   string
	OutputFields []Field
	Constraints  []string
	Rules        []string
	OutputFormat string
	Language     string
}

// Build renders the structured prompt. The caller's input payload is
// appended separately by the LLM client.
func Build(spec Spec) (string, error) {
	if strings.TrimSpace(spec.Purpose) == "" {
		return "", fmt.Errorf("prompt: purpose is empty")
	}
	if len(spec.OutputFields) == 0 {
		return "", fmt.Errorf("prompt: output fields are empty")
	}

	var buf bytes.Buffer
	writeSection(&buf, "PURPOSE", spec.Purpose)
	writeSection(&buf, "BACKGROUND", spec.Background)
	writeSection(&buf, "OUTPUT", formatFields(spec.OutputFields))
	writeSection(&buf, "CONSTRAINTS", formatList(spec.Constraints))
	writeSection(&buf, "RULES", formatList(spec.Rules))
	writeSection(&buf, "OUTPUT_FORMAT", spec.OutputFormat)
	writeSection(&buf, "LANGUAGE", spec.Language)

	return strings.TrimSpace(buf.String()) + "\n", nil
}

// MustBuild is Build for static specs that are known to be well-formed.
func MustBuild(spec Spec) string {
	s, err := Build(spec)
	if err != nil {
		panic(err)
	}
	return s
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	var buf strings.Builder
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		req := "optional"
		if f.Required {
			req = "required"
		}
		if f.Description != "" {
			fmt.Fprintf(&buf, "- %s (%s, %s): %s\n", name, f.Type, req, f.Description)
		} else {
			fmt.Fprintf(&buf, "- %s (%s, %s)\n", name, f.Type, req)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

// ExtractJSON pulls the first JSON object out of possibly-decorated model
// output: a fenced ```json block if present, otherwise the outermost
// balanced braces.
func ExtractJSON(text string) (json.RawMessage, bool) {
	if fenced, ok := extractFenced(text); ok {
		return fenced, true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}
	candidate := json.RawMessage(text[start : end+1])
	var scratch any
	if err := json.Unmarshal(candidate, &scratch); err != nil {
		return nil, false
	}
	return candidate, true
}

func extractFenced(text string) (json.RawMessage, bool) {
	for _, marker := range []string{"```json", "```"} {
		i := strings.Index(text, marker)
		if i == -1 {
			continue
		}
		rest := text[i+len(marker):]
		j := strings.Index(rest, "```")
		if j == -1 {
			continue
		}
		candidate := json.RawMessage(strings.TrimSpace(rest[:j]))
		var scratch any
		if err := json.Unmarshal(candidate, &scratch); err != nil {
			continue
		}
		return candidate, true
	}
	return nil, false
}
