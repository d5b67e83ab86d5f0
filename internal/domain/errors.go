package domain

import (
	"errors"
	"time"
)

// Kind classifies a domain error into the taxonomy every transport
// boundary (HTTP, SSE, CLI) maps back to a concrete status or code.
type Kind string

const (
	KindAuthMissing        Kind = "auth_missing"
	KindAuthInvalid        Kind = "auth_invalid"
	KindRateLimited        Kind = "rate_limited"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindModelNotFound      Kind = "model_not_found"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindConflict           Kind = "conflict"
	KindAborted            Kind = "aborted"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindInternal           Kind = "internal"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrStreamConflict       = errors.New("a message is already streaming on this conversation")
	ErrStreamAborted        = errors.New("stream aborted")
	ErrInvalidState         = errors.New("invalid state transition")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrModelNotFound        = errors.New("model not found")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrAuthMissing          = errors.New("owner identity missing")
	ErrAuthInvalid          = errors.New("owner identity invalid")
)

// Error wraps a sentinel error with a classification, a human message,
// and an optional retry hint surfaced to rate-limited callers.
type Error struct {
	Kind       Kind
	Err        error
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Err: err, Message: message}
}

func NewRateLimitError(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Err:        ErrRateLimited,
		Message:    "too many generations started recently",
		RetryAfter: retryAfter,
	}
}

// KindOf classifies an arbitrary error for transports that only have a
// plain error to work with (e.g. a provider adapter returning a sentinel).
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound):
		return KindNotFound
	case errors.Is(err, ErrStreamConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrModelNotFound):
		return KindModelNotFound
	case errors.Is(err, ErrProviderUnavailable):
		return KindProviderUnavailable
	case errors.Is(err, ErrAuthMissing):
		return KindAuthMissing
	case errors.Is(err, ErrAuthInvalid):
		return KindAuthInvalid
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidState):
		return KindInvalidInput
	default:
		return KindInternal
	}
}
