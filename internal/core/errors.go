package core

import (
	"errors"
	"fmt"
)

// EmbedErrorKind classifies failures from the embedding provider.
type EmbedErrorKind int

const (
	// EmbedValidation means the input was rejected locally (e.g. empty text).
	// Never retried.
	EmbedValidation EmbedErrorKind = iota
	// EmbedAuth means the provider rejected our credentials. Never retried;
	// requires operator intervention.
	EmbedAuth
	// EmbedRateLimited means the provider returned a rate-limit response.
	// Retryable with backoff.
	EmbedRateLimited
	// EmbedProvider covers any other non-2xx response or a malformed
	// response body. Retryable.
	EmbedProvider
)

func (k EmbedErrorKind) String() string {
	switch k {
	case EmbedValidation:
		return "validation"
	case EmbedAuth:
		return "auth"
	case EmbedRateLimited:
		return "rate_limited"
	default:
		return "provider"
	}
}

// EmbedError is the structured failure surfaced by EmbeddingProvider
// implementations. Status carries the provider's HTTP status when known.
type EmbedError struct {
	Kind   EmbedErrorKind
	Status int
	Msg    string
	Err    error
}

func (e *EmbedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embed %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("embed %s: %s", e.Kind, e.Msg)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// NewEmbedError builds an EmbedError wrapping cause (cause may be nil).
func NewEmbedError(kind EmbedErrorKind, status int, msg string, cause error) *EmbedError {
	return &EmbedError{Kind: kind, Status: status, Msg: msg, Err: cause}
}

// IsRetryable reports whether err is a transient embedding failure worth
// retrying. Unknown error types (network timeouts etc.) are treated as
// retryable; only explicit validation/auth rejections are terminal.
func IsRetryable(err error) bool {
	var ee *EmbedError
	if errors.As(err, &ee) {
		return ee.Kind == EmbedRateLimited || ee.Kind == EmbedProvider
	}
	return true
}
