package iterate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ideaforge/internal/llm"
	"ideaforge/internal/types"
)

// Verdict classifies one proposed delta.
type Verdict string

const (
	VerdictAccept             Verdict = "accept"
	VerdictLogicalFlaw        Verdict = "logical_flaw"
	VerdictFeasibilityConcern Verdict = "feasibility_concern"
	VerdictNewRisk            Verdict = "new_risk"
	VerdictLowValue           Verdict = "low_value"
)

func (v Verdict) valid() bool {
	switch v {
	case VerdictAccept, VerdictLogicalFlaw, VerdictFeasibilityConcern, VerdictNewRisk, VerdictLowValue:
		return true
	}
	return false
}

// Delta is one proposed incremental improvement.
type Delta struct {
	Content     string  `json:"content"`
	Dimension   string  `json:"dimension"`
	Impact      float64 `json:"impact"`
	Feasibility float64 `json:"feasibility"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// Critique is the per-delta verdict, keyed by the delta's index in the
// proposal order.
type Critique struct {
	DeltaIndex int     `json:"delta_index"`
	Verdict    Verdict `json:"verdict"`
	Severity   float64 `json:"severity"`
	Message    string  `json:"message,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
}

// Config tunes a round.
type Config struct {
	// MaxParallelCritiques bounds the critique fan-out.
	MaxParallelCritiques int
	// SeverityCutoff drops non-accepted deltas at or above this severity
	// even when a resolution is supplied.
	SeverityCutoff float64
}

func (c Config) withDefaults() Config {
	if c.MaxParallelCritiques <= 0 {
		c.MaxParallelCritiques = 4
	}
	if c.SeverityCutoff <= 0 {
		c.SeverityCutoff = 0.7
	}
	return c
}

// Engine runs propose/critique/synthesize rounds. It holds no session
// state; the caller owns the version history.
type Engine struct {
	client llm.Client
	cfg    Config
	now    func() time.Time
}

func New(client llm.Client, cfg Config) *Engine {
	return &Engine{client: client, cfg: cfg.withDefaults(), now: time.Now}
}

// SeedVersion builds version 0 from the clarified idea. It carries zero
// scores so the first round always registers as an improvement.
func (e *Engine) SeedVersion(content string) types.IterationVersion {
	return types.IterationVersion{
		VersionNumber: 0,
		Content:       content,
		CreatedAt:     e.now(),
	}
}

// RoundResult is the full outcome of one round, for event payloads.
type RoundResult struct {
	Version   types.IterationVersion
	Deltas    []Delta
	Critiques []Critique
	Kept      int
}

// RunRound produces the next version from prev. It either returns a
// complete scored version or an error wrapping ErrRoundFailed; it never
// mutates prev.
func (e *Engine) RunRound(ctx context.Context, prev types.IterationVersion) (*RoundResult, error) {
	deltas, err := e.propose(ctx, prev)
	if err != nil {
		return nil, roundErr("propose", err)
	}
	critiques, err := e.critiqueAll(ctx, prev, deltas)
	if err != nil {
		return nil, roundErr("critique", err)
	}
	kept := filterDeltas(deltas, critiques, e.cfg.SeverityCutoff)
	version, err := e.synthesize(ctx, prev, kept, critiques)
	if err != nil {
		return nil, roundErr("synthesize", err)
	}
	version.VersionNumber = prev.VersionNumber + 1
	version.CreatedAt = e.now()
	return &RoundResult{
		Version:   *version,
		Deltas:    deltas,
		Critiques: critiques,
		Kept:      len(kept),
	}, nil
}

func roundErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrRoundFailed, step, err)
}

type proposal struct {
	Deltas []Delta `json:"deltas"`
}

func (e *Engine) propose(ctx context.Context, prev types.IterationVersion) ([]Delta, error) {
	input := map[string]any{
		"content": prev.Content,
		"scores":  prev.Scores,
		"shortfall": map[string]float64{
			"novelty":     1 - prev.Scores.Novelty,
			"feasibility": 1 - prev.Scores.Feasibility,
			"coherence":   1 - prev.Scores.Coherence,
		},
	}
	var out proposal
	if err := llm.GenerateAs(ctx, e.client, llm.RoleInnovator, innovatorPrompt, input, &out); err != nil {
		return nil, err
	}
	deltas := make([]Delta, 0, len(out.Deltas))
	for _, d := range out.Deltas {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		d.Impact = clamp01(d.Impact)
		d.Feasibility = clamp01(d.Feasibility)
		deltas = append(deltas, d)
	}
	if len(deltas) == 0 {
		return nil, fmt.Errorf("innovator produced no usable deltas")
	}
	return deltas, nil
}

// critiqueAll fans out one model call per delta with bounded parallelism
// and re-joins results by delta index, so synthesis always sees a
// complete, stably ordered critique set.
func (e *Engine) critiqueAll(ctx context.Context, prev types.IterationVersion, deltas []Delta) ([]Critique, error) {
	results := make([]Critique, len(deltas))
	errs := make([]error, len(deltas))
	sem := make(chan struct{}, e.cfg.MaxParallelCritiques)
	var wg sync.WaitGroup

	for i := range deltas {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			c, err := e.critiqueOne(ctx, prev, deltas[i], i)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = c
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

type critiqueReply struct {
	Verdict    Verdict `json:"verdict"`
	Severity   float64 `json:"severity"`
	Message    string  `json:"message"`
	Resolution string  `json:"resolution,omitempty"`
}

func (e *Engine) critiqueOne(ctx context.Context, prev types.IterationVersion, d Delta, idx int) (Critique, error) {
	input := map[string]any{
		"current_version": prev.Content,
		"delta":           d,
		"delta_index":     idx,
	}
	var out critiqueReply
	if err := llm.GenerateAs(ctx, e.client, llm.RoleCritic, criticPrompt, input, &out); err != nil {
		return Critique{}, err
	}
	if !out.Verdict.valid() {
		return Critique{}, fmt.Errorf("critic returned unknown verdict %q", out.Verdict)
	}
	return Critique{
		DeltaIndex: idx,
		Verdict:    out.Verdict,
		Severity:   clamp01(out.Severity),
		Message:    out.Message,
		Resolution: out.Resolution,
	}, nil
}

// filterDeltas keeps accepted deltas and resolved concerns under the
// severity cutoff. Low-value and unresolved flawed deltas are dropped.
func filterDeltas(deltas []Delta, critiques []Critique, cutoff float64) []Delta {
	kept := make([]Delta, 0, len(deltas))
	for i, d := range deltas {
		c := critiques[i]
		switch {
		case c.Verdict == VerdictAccept:
			kept = append(kept, d)
		case c.Verdict == VerdictLowValue:
			// dropped
		case c.Resolution != "" && c.Severity < cutoff:
			d.Content = d.Content + " (" + c.Resolution + ")"
			kept = append(kept, d)
		}
	}
	return kept
}

type synthesisReply struct {
	Content     string   `json:"content"`
	KeyChanges  []string `json:"key_changes"`
	Novelty     float64  `json:"novelty"`
	Feasibility float64  `json:"feasibility"`
	Coherence   float64  `json:"coherence"`
}

func (e *Engine) synthesize(ctx context.Context, prev types.IterationVersion, kept []Delta, critiques []Critique) (*types.IterationVersion, error) {
	input := map[string]any{
		"current_version": prev.Content,
		"deltas":          kept,
		"critiques":       critiques,
	}
	var out synthesisReply
	if err := llm.GenerateAs(ctx, e.client, llm.RoleSynthesizer, synthPrompt, input, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, fmt.Errorf("synthesizer returned empty content")
	}
	return &types.IterationVersion{
		Content:    out.Content,
		KeyChanges: out.KeyChanges,
		Scores: types.Scores{
			Novelty:     clamp01(out.Novelty),
			Feasibility: clamp01(out.Feasibility),
			Coherence:   clamp01(out.Coherence),
		},
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
