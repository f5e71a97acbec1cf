package llm

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a technical failure for logging and retry decisions.
type FailureKind string

// Failure kinds. All of them are transient from the engine's point of view and
// feed the executor's retry policy; none of them is a business outcome.
const (
	FailureTimeout   FailureKind = "timeout"
	FailureRateLimit FailureKind = "rate_limit"
	FailureTransport FailureKind = "transport"
	FailureBadOutput FailureKind = "bad_output"
)

// TechnicalError marks an infrastructure-level failure of a model call:
// transport trouble, a timeout, rate limiting, or output that does not match
// the scene's schema. Business decisions never travel through this type.
type TechnicalError struct {
	Scene string
	Kind  FailureKind
	Err   error
}

func (e *TechnicalError) Error() string {
	return fmt.Sprintf("scene %s: %s: %v", e.Scene, e.Kind, e.Err)
}

func (e *TechnicalError) Unwrap() error { return e.Err }

// NewTechnicalError wraps err with its scene and classification.
func NewTechnicalError(scene string, kind FailureKind, err error) *TechnicalError {
	return &TechnicalError{Scene: scene, Kind: kind, Err: err}
}

// classify maps a transport-level error to a failure kind.
func classify(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureTransport
}
