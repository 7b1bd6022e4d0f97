package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure for the orchestration layer.
type Kind string

const (
	// KindInvalidInput marks input rejected before reaching an agent.
	KindInvalidInput Kind = "invalid_input"
	// KindNotFound marks an unknown session id or missing artifact.
	KindNotFound Kind = "not_found"
	// KindPrerequisiteNotMet marks a stage invoked out of order.
	KindPrerequisiteNotMet Kind = "prerequisite_not_met"
	// KindAgentFailure marks a delegated stage operation reporting failure.
	KindAgentFailure Kind = "agent_failure"
	// KindTimeout marks a delegated agent call exceeding its deadline.
	KindTimeout Kind = "timeout"
	// KindInternalFault marks an unexpected fault inside the core.
	KindInternalFault Kind = "internal_fault"
)

// Error is a structured, recoverable stage failure. The session state is
// always left unmodified when one is returned.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure kind of an error, defaulting to internal fault
// for anything untyped.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternalFault
}

// MessageOf extracts the user-facing message of an error.
func MessageOf(err error) string {
	var we *Error
	if errors.As(err, &we) {
		return we.Message
	}
	return "internal error"
}
