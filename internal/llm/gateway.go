package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ideaforge/internal/types"
)

// AttemptError records one failed provider attempt in the fallback chain.
type AttemptError struct {
	Client string
	Err    error
}

// ChainError carries the full structured failure report when every
// capability handle in the chain has been tried.
type ChainError struct {
	Attempts []AttemptError
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Client, a.Err))
	}
	return "llm: all providers failed [" + strings.Join(parts, "; ") + "]"
}

func (e *ChainError) Unwrap() error { return types.ErrProviderUnavailable }

// Gateway tries an explicit ordered list of capability handles. There is
// no silent substitution: every attempt failure is reported, and the
// chain order is fixed at construction.
type Gateway struct {
	chain          []Client
	attemptTimeout time.Duration
}

// NewGateway builds a gateway over the given clients, tried in order.
// attemptTimeout bounds each individual provider call; <=0 disables it.
func NewGateway(attemptTimeout time.Duration, chain ...Client) (*Gateway, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("llm: gateway needs at least one client")
	}
	return &Gateway{chain: chain, attemptTimeout: attemptTimeout}, nil
}

func (g *Gateway) Name() string {
	names := make([]string, 0, len(g.chain))
	for _, c := range g.chain {
		names = append(names, c.Name())
	}
	return "chain[" + strings.Join(names, ",") + "]"
}

func (g *Gateway) Close() error {
	var first error
	for _, c := range g.chain {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GenerateJSON tries each client in order until one returns valid JSON.
// Context cancellation aborts the whole chain; a per-attempt timeout
// counts as a failed attempt and moves on to the next handle.
func (g *Gateway) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var attempts []AttemptError
	for _, c := range g.chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cctx := ctx
		cancel := func() {}
		if g.attemptTimeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, g.attemptTimeout)
		}
		raw, err := c.GenerateJSON(cctx, prompt, input)
		cancel()
		if err == nil {
			return raw, nil
		}
		attempts = append(attempts, AttemptError{Client: c.Name(), Err: err})
		// A canceled parent context is not a provider failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &ChainError{Attempts: attempts}
}

// GenerateAs decodes the gateway response into out.
func GenerateAs(ctx context.Context, c Client, role Role, prompt string, input, out any) error {
	raw, err := c.GenerateJSON(WithRole(ctx, role), prompt, input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}
