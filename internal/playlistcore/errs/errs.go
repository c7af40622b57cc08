// Package errs defines the typed error kinds produced by the playlist core,
// per the error handling design: each component raises one of a small closed
// set of kinds, always wrapping the underlying collaborator error so the
// original message survives in logs and decision entries.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies which error kind a CoreError carries. Kinds are compared
// with errors.Is against the sentinel values below, never by string.
type Kind string

const (
	KindParseError            Kind = "ParseError"
	KindLockBusy              Kind = "LockBusy"
	KindLLMError              Kind = "LLMError"
	KindToolTimeout           Kind = "ToolTimeout"
	KindToolError             Kind = "ToolError"
	KindInsufficientTracks    Kind = "InsufficientTracks"
	KindBudgetExceeded        Kind = "BudgetExceeded"
	KindEnrichmentUnavailable Kind = "EnrichmentUnavailable"
	KindCancellationTimeout   Kind = "CancellationTimeout"
	KindNotFound              Kind = "NotFound"
	KindAuthFailure           Kind = "AuthFailure"
	KindUnreachable           Kind = "Unreachable"
	KindRateLimited           Kind = "RateLimited"
)

// sentinels, one per Kind, so callers can errors.Is(err, errs.ParseError)
// without constructing a CoreError themselves.
var (
	ParseError            = &CoreError{Kind: KindParseError}
	LockBusy              = &CoreError{Kind: KindLockBusy}
	LLMError              = &CoreError{Kind: KindLLMError}
	ToolTimeout           = &CoreError{Kind: KindToolTimeout}
	ToolError             = &CoreError{Kind: KindToolError}
	InsufficientTracks    = &CoreError{Kind: KindInsufficientTracks}
	BudgetExceeded        = &CoreError{Kind: KindBudgetExceeded}
	EnrichmentUnavailable = &CoreError{Kind: KindEnrichmentUnavailable}
	CancellationTimeout   = &CoreError{Kind: KindCancellationTimeout}
	NotFound              = &CoreError{Kind: KindNotFound}
	AuthFailure           = &CoreError{Kind: KindAuthFailure}
	Unreachable           = &CoreError{Kind: KindUnreachable}
	RateLimited           = &CoreError{Kind: KindRateLimited}
)

// CoreError wraps a collaborator error with a Kind so decision log entries
// and batch-level handling can branch on it via errors.Is/errors.As.
type CoreError struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *CoreError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is a CoreError of the same Kind, so the package
// sentinels work with the standard errors.Is without comparing messages.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *CoreError) Unwrap() error {
	return e.Wrapped
}

// New builds a CoreError of kind with a formatted message, wrapping cause if
// given. Matches the teacher's fmt.Errorf("...: %w", err) wrapping idiom but
// keeps the Kind queryable separately from the message text.
func New(kind Kind, cause error, format string, args ...interface{}) *CoreError {
	return &CoreError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Wrapped: cause,
	}
}

// KindOf extracts the Kind of err if it is (or wraps) a *CoreError, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
