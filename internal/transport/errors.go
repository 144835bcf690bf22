package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the platform-neutral classification of a failed API call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindNotFound
	KindRateLimited
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Retryable reports whether a later attempt of the same call may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// Error wraps a platform error with its classification.
type Error struct {
	Kind ErrorKind
	Op   string // create_invite_link, send, edit, delete
	Chat string

	// RetryAfter is the platform's suggested wait (rate limits only).
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	if e.Chat != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Chat, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err.
// Errors that were not produced by an adapter are KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// RetryAfterOf returns the platform's retry hint (0 if none).
func RetryAfterOf(err error) time.Duration {
	var te *Error
	if errors.As(err, &te) {
		return te.RetryAfter
	}
	return 0
}
