package llm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ideaforge/internal/tester"
)

// slowClient parks until its context expires.
type slowClient struct{}

func (slowClient) Name() string { return "slow" }
func (slowClient) Close() error { return nil }
func (slowClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRateLimitSpacesCalls(t *testing.T) {
	inner := &flakyClient{name: "fast"}
	c := Wrap(inner, RateLimit(50, 1)) // one token every 20ms, burst of 1
	defer c.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.GenerateJSON(context.Background(), "p", nil)
		tester.NoErr(t, err)
	}
	// first call spends the prefilled token; the next two wait for refills
	tester.True(t, time.Since(start) >= 30*time.Millisecond)
	tester.Eq(t, inner.calls, 3)
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	inner := &flakyClient{name: "fast"}
	c := Wrap(inner, RateLimit(0, 0))
	defer c.Close()

	for i := 0; i < 3; i++ {
		_, err := c.GenerateJSON(context.Background(), "p", nil)
		tester.NoErr(t, err)
	}
	tester.Eq(t, inner.calls, 3)
}

func TestRateLimitHonorsCancellation(t *testing.T) {
	inner := &flakyClient{name: "fast"}
	c := Wrap(inner, RateLimit(0.2, 1)) // 5s per token after the burst
	defer c.Close()

	_, err := c.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.GenerateJSON(ctx, "p", nil)
	tester.ErrIs(t, err, context.DeadlineExceeded)
	tester.Eq(t, inner.calls, 1) // second call never reached the client
}

func TestTimeoutBoundsSlowCall(t *testing.T) {
	c := Wrap(slowClient{}, Timeout(10*time.Millisecond))
	start := time.Now()
	_, err := c.GenerateJSON(context.Background(), "p", nil)
	tester.ErrIs(t, err, context.DeadlineExceeded)
	tester.True(t, time.Since(start) < 5*time.Second)
}

func TestTimeoutDisabledReturnsInner(t *testing.T) {
	inner := &flakyClient{name: "fast"}
	c := Wrap(inner, Timeout(0))
	_, err := c.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)
	tester.Eq(t, inner.calls, 1)
}
