package research

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySeed is returned by Run when the seed query is blank.
	ErrEmptySeed = errors.New("seed query is empty")
	// ErrAllSearchesFailed escalates isolated search failures to a session-fatal error.
	ErrAllSearchesFailed = errors.New("all searches failed")
	// ErrNoQueries is wrapped in an ExpansionError when the expander yields nothing usable.
	ErrNoQueries = errors.New("expander returned no usable queries")
)

// ExpansionError is fatal to the session.
type ExpansionError struct {
	Iteration int
	Err       error
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("expansion failed on iteration %d: %v", e.Iteration, e.Err)
}

func (e *ExpansionError) Unwrap() error { return e.Err }

// SearchError is isolated to a single query.
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search %q failed: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// EvaluationError is isolated to a single document and never fatal.
type EvaluationError struct {
	URL string
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of %s failed: %v", e.URL, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// SynthesisError is fatal to the session.
type SynthesisError struct {
	Iteration int
	Err       error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed on iteration %d: %v", e.Iteration, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// reasonFor maps a session-fatal error to its termination reason. The
// caller checks its own context first, so anything unrecognised here is a
// cancellation surfacing through a collaborator.
func reasonFor(err error) TerminationReason {
	var (
		expErr *ExpansionError
		synErr *SynthesisError
	)
	switch {
	case errors.As(err, &expErr):
		return ReasonExpansionFailed
	case errors.Is(err, ErrAllSearchesFailed):
		return ReasonSearchFailed
	case errors.As(err, &synErr):
		return ReasonSynthesisFailed
	}
	return ReasonCancelled
}
