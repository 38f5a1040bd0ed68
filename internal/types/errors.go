package types

import "errors"

// Error kinds surfaced to clients. NotFound/InvalidState/Expired indicate
// caller misuse or lifecycle boundaries and are never retried; RoundFailed
// and ProviderUnavailable are retried locally before being surfaced.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrExpired             = errors.New("session expired")
	ErrRoundFailed         = errors.New("iteration round failed")
	ErrVerificationFailed  = errors.New("verification failed")
	ErrProviderUnavailable = errors.New("no model provider available")
)

// ErrorKind names an error class for the wire envelope.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrExpired):
		return "Expired"
	case errors.Is(err, ErrRoundFailed):
		return "RoundFailed"
	case errors.Is(err, ErrVerificationFailed):
		return "VerificationFailed"
	case errors.Is(err, ErrProviderUnavailable):
		return "ProviderUnavailable"
	}
	return "Internal"
}
