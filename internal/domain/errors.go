package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the search components.
var (
	ErrRateLimited         = errors.New("rate limited")
	ErrSchemaViolation     = errors.New("response violates output schema")
	ErrProviderUnavailable = errors.New("LLM provider unavailable")
	ErrTimeout             = errors.New("timed out")
	ErrCandidateInvalid    = errors.New("candidate invalid")
	ErrEvaluationEmpty     = errors.New("evaluation empty")
	ErrPersistenceConflict = errors.New("persistence conflict")
)

// Lookup errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrFrameworkNotFound  = errors.New("framework not found")
	ErrPopulationNotFound = errors.New("population not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// CandidateError describes why a candidate could not be scored. Kind is
// either ErrCandidateInvalid or ErrEvaluationEmpty.
type CandidateError struct {
	FrameworkID string
	Kind        error
	Cause       error
}

func (e *CandidateError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.FrameworkID)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.FrameworkID, e.Cause)
}

func (e *CandidateError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NewCandidateInvalid wraps cause as a CandidateInvalid failure.
func NewCandidateInvalid(frameworkID string, cause error) *CandidateError {
	return &CandidateError{FrameworkID: frameworkID, Kind: ErrCandidateInvalid, Cause: cause}
}

// NewEvaluationEmpty wraps cause as an EvaluationEmpty failure.
func NewEvaluationEmpty(frameworkID string, cause error) *CandidateError {
	return &CandidateError{FrameworkID: frameworkID, Kind: ErrEvaluationEmpty, Cause: cause}
}

// IsCandidateFailure reports whether err disqualifies a candidate and should
// feed the debug loop rather than abort the generation.
func IsCandidateFailure(err error) bool {
	return errors.Is(err, ErrCandidateInvalid) || errors.Is(err, ErrEvaluationEmpty)
}
