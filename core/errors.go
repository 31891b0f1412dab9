package core

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a generation failure. The orchestrator decides retries by
// kind, the bot picks the user-facing message by kind.
type Kind string

const (
	KindInvalidPrompt Kind = "invalid_prompt"
	KindSessionBusy   Kind = "session_busy"
	KindTransient     Kind = "transient"
	KindRateLimited   Kind = "rate_limited"
	KindRejected      Kind = "rejected"
	KindTimeout       Kind = "timeout"
	KindCancelled     Kind = "cancelled"
)

// GenError is a generation failure with a kind attached. RetryAfter is only
// set for KindRateLimited when the remote service supplied a hint.
type GenError struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *GenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *GenError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from an error chain. Errors that carry no
// GenError are reported as KindTransient: they come from code that did not
// classify its failure, and retrying is the safe reading for those.
func KindOf(err error) Kind {
	var genErr *GenError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindTransient
}

// RetryAfterOf returns the rate limit hint carried by the error chain,
// or zero when there is none.
func RetryAfterOf(err error) time.Duration {
	var genErr *GenError
	if errors.As(err, &genErr) {
		return genErr.RetryAfter
	}
	return 0
}
