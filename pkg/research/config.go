package research

import (
	"errors"
	"fmt"
	"time"
)

// RetryPolicy bounds retries of a single collaborator call. It is unrelated
// to MaxIterations, which bounds the research loop itself.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config is the immutable engine configuration.
type Config struct {
	MaxQueries         int
	MaxResultsPerQuery int
	MinRelevance       float64
	MinConfidence      float64
	MaxIterations      int
	CallTimeout        time.Duration
	Retry              RetryPolicy
	// MaxConcurrency caps in-flight calls per fan-out; 0 means unbounded.
	MaxConcurrency int
	// GapsForceContinue lets named gaps keep the loop going even when
	// confidence has reached MinConfidence.
	GapsForceContinue bool
}

// DefaultConfig returns the stock research parameters.
func DefaultConfig() Config {
	return Config{
		MaxQueries:         3,
		MaxResultsPerQuery: 20,
		MinRelevance:       6,
		MinConfidence:      7,
		MaxIterations:      3,
		CallTimeout:        60 * time.Second,
		Retry: RetryPolicy{
			MaxAttempts:     3,
			InitialInterval: time.Second,
			MaxInterval:     10 * time.Second,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxQueries <= 0 {
		errs = append(errs, fmt.Errorf("max queries must be positive, got %d", c.MaxQueries))
	}
	if c.MaxResultsPerQuery <= 0 {
		errs = append(errs, fmt.Errorf("max results per query must be positive, got %d", c.MaxResultsPerQuery))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	if c.MinRelevance < 0 || c.MinRelevance > 10 {
		errs = append(errs, fmt.Errorf("min relevance must be within 0-10, got %g", c.MinRelevance))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 10 {
		errs = append(errs, fmt.Errorf("min confidence must be within 0-10, got %g", c.MinConfidence))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max concurrency must not be negative, got %d", c.MaxConcurrency))
	}
	return errors.Join(errs...)
}
