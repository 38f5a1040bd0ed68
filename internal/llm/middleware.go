package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, timeouts, logging).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Retry --------

// Retry retries GenerateJSON up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors are not retried. If the context
// is canceled, it stops immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.GenerateJSON(ctx, prompt, input)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		time.Sleep(r.base * time.Duration(1<<i))
	}
	return nil, last
}

// -------- Per-attempt timeout --------

// Timeout bounds each GenerateJSON call. An exceeded deadline surfaces as
// a regular failed attempt for the retry policy above it.
func Timeout(d time.Duration) Middleware {
	return func(next Client) Client {
		if d <= 0 {
			return next
		}
		return &timed{next: next, d: d}
	}
}

type timed struct {
	next Client
	d    time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }

func (t *timed) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	cctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GenerateJSON(cctx, prompt, input)
}

// -------- Rate limiting --------

// RateLimit limits request rate using a token-bucket limiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		rl := newRPSLimiter(rps, burst) // nil when disabled
		return &rateLimited{next: next, rl: rl}
	}
}

type rateLimited struct {
	next Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

// -------- Logging --------

// Logged writes a line per request with role, client and outcome.
func Logged() Middleware {
	return func(next Client) Client {
		return &logged{next: next}
	}
}

type logged struct {
	next Client
}

func (c *logged) Name() string { return c.next.Name() }
func (c *logged) Close() error { return c.next.Close() }

func (c *logged) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	role := RoleFrom(ctx)
	start := time.Now()
	raw, err := c.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		log.Printf("LLM %s (%s) failed after %s: %v", c.next.Name(), role, time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}
	log.Printf("LLM %s (%s): %d bytes in %s", c.next.Name(), role, len(raw), time.Since(start).Round(time.Millisecond))
	return raw, nil
}
