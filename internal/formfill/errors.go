package formfill

import (
	"errors"
	"fmt"
)

// ErrorKind classifies field-level failures so the orchestrator can pick
// an escalation path.
type ErrorKind string

const (
	// ErrKindTimeout means a driver exceeded its per-strategy budget
	ErrKindTimeout ErrorKind = "timeout"

	// ErrKindDropdown means a vendor driver found no matching option
	ErrKindDropdown ErrorKind = "dropdown"

	// ErrKindVerification means the post-fill read-back did not match
	ErrKindVerification ErrorKind = "verification"

	// ErrKindHumanInput marks a field terminal for automation
	ErrKindHumanInput ErrorKind = "human_input"

	// ErrKindStale means the element vanished; re-resolve next iteration
	ErrKindStale ErrorKind = "stale"

	// ErrKindBrowser means the page is unrecoverable within this job
	ErrKindBrowser ErrorKind = "browser"
)

// FieldError is the single error type for field interaction failures.
// Kind drives escalation; everything except ErrKindBrowser is recoverable
// at the orchestrator level.
type FieldError struct {
	Kind       ErrorKind
	FieldLabel string
	Details    string
	Err        error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s on field %q: %s: %v", e.Kind, e.FieldLabel, e.Details, e.Err)
	}
	return fmt.Sprintf("%s on field %q: %s", e.Kind, e.FieldLabel, e.Details)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// NewFieldError creates a FieldError with the given kind
func NewFieldError(kind ErrorKind, label, details string) *FieldError {
	return &FieldError{Kind: kind, FieldLabel: label, Details: details}
}

// WrapFieldError wraps an underlying cause
func WrapFieldError(kind ErrorKind, label, details string, err error) *FieldError {
	return &FieldError{Kind: kind, FieldLabel: label, Details: details, Err: err}
}

// IsFieldError extracts a FieldError from an error chain
func IsFieldError(err error) (*FieldError, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsRecoverable reports whether the orchestrator can escalate this
// failure to the next phase instead of failing the job.
func IsRecoverable(err error) bool {
	fe, ok := IsFieldError(err)
	if !ok {
		return false
	}
	return fe.Kind != ErrKindBrowser
}
