package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client is a single model capability handle. GenerateJSON sends the
// prompt plus a JSON-encoded input and expects a JSON document back.
type Client interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// Role names the reasoning capability a call is made on behalf of.
type Role string

const (
	RoleClarifier   Role = "clarifier"
	RoleInnovator   Role = "innovator"
	RoleCritic      Role = "critic"
	RoleSynthesizer Role = "synthesizer"
	RoleVerifier    Role = "verifier"
	RoleSummarizer  Role = "summarizer"
)

type ctxKeyRole struct{}

// WithRole attaches the calling role to the context.
func WithRole(ctx context.Context, role Role) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKeyRole{}, role)
}

// RoleFrom extracts the calling role, defaulting to clarifier.
func RoleFrom(ctx context.Context) Role {
	if ctx != nil {
		if v, ok := ctx.Value(ctxKeyRole{}).(Role); ok && v != "" {
			return v
		}
	}
	return RoleClarifier
}
