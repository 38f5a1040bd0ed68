package verify

import (
	"context"
	"fmt"
	"log"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"ideaforge/internal/llm"
	"ideaforge/internal/types"
)

// Weights distribute the overall score across the four report categories.
type Weights struct {
	LogicalConsistency float64
	FactualAccuracy    float64
	Feasibility        float64
	RiskAssessment     float64
}

func (w Weights) sum() float64 {
	return w.LogicalConsistency + w.FactualAccuracy + w.Feasibility + w.RiskAssessment
}

// DefaultWeights favor logic and facts over feasibility and risk.
var DefaultWeights = Weights{
	LogicalConsistency: 0.3,
	FactualAccuracy:    0.3,
	Feasibility:        0.25,
	RiskAssessment:     0.15,
}

// Config tunes the verification engine.
type Config struct {
	Weights Weights
	// Strict makes any critical issue a verification failure instead of
	// a low-scoring accepted report.
	Strict bool
	// CriticalImportance is the claim importance at or above which an
	// unsupported claim becomes a critical issue.
	CriticalImportance float64
	// CacheSize bounds the evidence lookup cache.
	CacheSize int
}

func (c Config) withDefaults() Config {
	if c.Weights.sum() == 0 {
		c.Weights = DefaultWeights
	}
	if c.CriticalImportance <= 0 {
		c.CriticalImportance = 0.7
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	return c
}

// Engine produces one VerificationReport per finished iteration sequence.
type Engine struct {
	client llm.Client // optional, for claim decomposition
	source Source
	cache  *lru.Cache[string, []Evidence]
	cfg    Config
}

func New(client llm.Client, source Source, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if source == nil {
		source = NullSource{}
	}
	cache, err := lru.New[string, []Evidence](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("verify: cache: %w", err)
	}
	return &Engine{client: client, source: source, cache: cache, cfg: cfg}, nil
}

// Verify checks the final version and builds the report. With strict mode
// on, critical issues return the report alongside ErrVerificationFailed.
func (e *Engine) Verify(ctx context.Context, version types.IterationVersion) (*types.VerificationReport, error) {
	claims := e.decompose(ctx, version.Content)
	for i := range claims {
		evidence, err := e.lookup(ctx, claims[i].Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("verify: evidence lookup for claim failed: %v", err)
			evidence = nil
		}
		claims[i].Status = classifyStatus(claims[i], evidence)
	}

	report := e.buildReport(version.Content, claims)
	if e.cfg.Strict && len(report.CriticalIssues) > 0 {
		return report, fmt.Errorf("%w: %d critical issue(s)", types.ErrVerificationFailed, len(report.CriticalIssues))
	}
	return report, nil
}

func (e *Engine) lookup(ctx context.Context, claim string) ([]Evidence, error) {
	key := strings.ToLower(strings.TrimSpace(claim))
	if ev, ok := e.cache.Get(key); ok {
		return ev, nil
	}
	ev, err := e.source.Lookup(ctx, claim)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, ev)
	return ev, nil
}

// classifyStatus pairs a claim with its evidence. Unsupported applies to
// checkable (factual/logical) claims only; hedged or vague claims without
// evidence need clarification rather than count against accuracy.
func classifyStatus(c Claim, evidence []Evidence) types.ClaimStatus {
	best := 0.0
	for _, ev := range evidence {
		if ev.Confidence > best {
			best = ev.Confidence
		}
	}
	lc := strings.ToLower(c.Text)
	switch {
	case best >= 0.7:
		return types.ClaimSupported
	case best > 0:
		return types.ClaimPartiallySupported
	case containsAny(lc, "some ", "many ", "various", "somehow", "etc"):
		return types.ClaimNeedsClarification
	case c.Kind == ClaimFactual || c.Kind == ClaimLogical:
		return types.ClaimUnsupported
	default:
		return types.ClaimPartiallySupported
	}
}

func statusScore(s types.ClaimStatus) float64 {
	switch s {
	case types.ClaimSupported:
		return 1.0
	case types.ClaimPartiallySupported:
		return 0.6
	case types.ClaimNeedsClarification:
		return 0.4
	default:
		return 0.0
	}
}

func (e *Engine) buildReport(content string, claims []Claim) *types.VerificationReport {
	report := &types.VerificationReport{
		LogicalConsistency: categoryScore(claims, ClaimLogical, 0.8),
		FactualAccuracy:    categoryScore(claims, ClaimFactual, 0.7),
		Feasibility:        categoryScore(claims, ClaimFeasibility, 0.7),
		RiskAssessment:     riskScore(content),
	}
	lc := strings.ToLower(content)
	if strings.Contains(lc, "always") && strings.Contains(lc, "never") {
		report.LogicalConsistency = clamp01(report.LogicalConsistency - 0.2)
	}

	for _, c := range claims {
		if c.Status == types.ClaimUnsupported && c.Importance >= e.cfg.CriticalImportance {
			report.CriticalIssues = append(report.CriticalIssues, "unsupported claim: "+c.Text)
		}
	}
	report.Recommendations = recommendations(lc)

	w := e.cfg.Weights
	report.OverallScore = clamp01((report.LogicalConsistency*w.LogicalConsistency +
		report.FactualAccuracy*w.FactualAccuracy +
		report.Feasibility*w.Feasibility +
		report.RiskAssessment*w.RiskAssessment) / w.sum())
	return report
}

func categoryScore(claims []Claim, kind ClaimKind, fallback float64) float64 {
	var sum float64
	var n int
	for _, c := range claims {
		if c.Kind == kind {
			sum += statusScore(c.Status)
			n++
		}
	}
	if n == 0 {
		return fallback
	}
	return clamp01(sum / float64(n))
}

// riskFlags pair a risk signal with its mitigation markers and the
// recommendation surfaced when the signal appears unmitigated.
var riskFlags = []struct {
	signal      string
	mitigations []string
	advice      string
}{
	{"privacy", []string{"anonymize", "encrypt", "consent", "gdpr"}, "describe how user data privacy is protected"},
	{"personal data", []string{"anonymize", "encrypt", "consent", "gdpr"}, "describe how user data privacy is protected"},
	{"regulat", []string{"compliance", "licensed", "legal review"}, "add a compliance plan for the regulated parts"},
	{"payment", []string{"pci", "escrow", "stripe"}, "specify the payment handling and its safeguards"},
	{"children", []string{"parental", "coppa", "age verification"}, "add age-appropriate safeguards for minors"},
	{"moderation", nil, "define the content moderation policy"},
}

func riskScore(content string) float64 {
	lc := strings.ToLower(content)
	score := 0.8
	for _, f := range riskFlags {
		if !strings.Contains(lc, f.signal) {
			continue
		}
		mitigated := false
		for _, m := range f.mitigations {
			if strings.Contains(lc, m) {
				mitigated = true
				break
			}
		}
		if !mitigated {
			score -= 0.1
		}
	}
	return clamp01(score)
}

func recommendations(lc string) []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range riskFlags {
		if !strings.Contains(lc, f.signal) || seen[f.advice] {
			continue
		}
		mitigated := false
		for _, m := range f.mitigations {
			if strings.Contains(lc, m) {
				mitigated = true
				break
			}
		}
		if !mitigated {
			out = append(out, f.advice)
			seen[f.advice] = true
		}
	}
	return out
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
