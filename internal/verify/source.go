package verify

import (
	"context"
	"strings"
)

// Evidence is one retrieved item supporting or weakening a claim.
type Evidence struct {
	Origin     string  `json:"origin"`
	Excerpt    string  `json:"excerpt"`
	Confidence float64 `json:"confidence"`
}

// Source is the abstract evidence-lookup capability. Implementations
// must be safe for concurrent use.
type Source interface {
	Lookup(ctx context.Context, claim string) ([]Evidence, error)
}

// NullSource never finds evidence. Claims are then judged on text
// heuristics alone.
type NullSource struct{}

func (NullSource) Lookup(context.Context, string) ([]Evidence, error) { return nil, nil }

// StaticSource matches claims against a fixed keyword index. Used in
// tests and as an offline default corpus.
type StaticSource struct {
	entries map[string]Evidence
}

func NewStaticSource(entries map[string]Evidence) *StaticSource {
	idx := make(map[string]Evidence, len(entries))
	for k, v := range entries {
		idx[strings.ToLower(k)] = v
	}
	return &StaticSource{entries: idx}
}

func (s *StaticSource) Lookup(ctx context.Context, claim string) ([]Evidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lc := strings.ToLower(claim)
	var out []Evidence
	for k, e := range s.entries {
		if strings.Contains(lc, k) {
			out = append(out, e)
		}
	}
	return out, nil
}
