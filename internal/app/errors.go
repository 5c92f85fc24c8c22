package service

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for this package.
var (
	ErrNoArtifacts   = errors.New("scoring artifacts are required")
	ErrNoDataset     = errors.New("no dataset configured")
	ErrAuditDisabled = errors.New("prediction audit is disabled")
)

// ValidationError is a client-caused rejection of a prediction payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InternalError is a server-side failure in the scoring pipeline.
// Message is safe to show to clients; Err is for logs.
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// ReportError is a failure to produce dataset statistics.
type ReportError struct {
	Err error
}

func (e *ReportError) Error() string { return e.Err.Error() }

func (e *ReportError) Unwrap() error { return e.Err }
