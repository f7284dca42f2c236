package research

import (
	"time"
)

// Query is a derived search query produced by the Expander.
type Query struct {
	Text      string `json:"text"`
	Iteration int    `json:"iteration"`
	Parent    string `json:"parent,omitempty"`
}

// Document is a single search hit. URL is the dedup key for a whole session.
type Document struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Content       string  `json:"content,omitempty"`
	Query         string  `json:"query"`
	Iteration     int     `json:"iteration"`
	PublishedDate string  `json:"published_date,omitempty"`
	SearchScore   float64 `json:"search_score,omitempty"`
}

// Evaluation is what an Evaluator returns for one document.
type Evaluation struct {
	Score     float64  `json:"score"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// EvaluatedSummary is a document that passed the relevance gate.
type EvaluatedSummary struct {
	Document  Document `json:"document"`
	Score     float64  `json:"score"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// Finding is a themed statement extracted by the Synthesizer.
type Finding struct {
	Theme   string `json:"theme"`
	Finding string `json:"finding"`
}

// Synthesis is the Synthesizer's view of the cumulative summaries.
type Synthesis struct {
	Narrative  string    `json:"narrative"`
	Confidence float64   `json:"confidence"`
	Gaps       []string  `json:"gaps"`
	Findings   []Finding `json:"findings,omitempty"`
}

// QueryFailure records an isolated search failure.
type QueryFailure struct {
	Query string `json:"query"`
	Error string `json:"error"`
}

// IterationResult is the immutable record of one completed iteration.
type IterationResult struct {
	Index              int                `json:"index"`
	Queries            []Query            `json:"queries"`
	Documents          []Document         `json:"documents"`
	Candidates         int                `json:"candidates"`
	Retained           []EvaluatedSummary `json:"retained"`
	SearchFailures     []QueryFailure     `json:"search_failures,omitempty"`
	EvaluationFailures int                `json:"evaluation_failures"`
	Synthesis          *Synthesis         `json:"synthesis,omitempty"`
	Confidence         float64            `json:"confidence"`
	Gaps               []string           `json:"gaps"`
	Duration           time.Duration      `json:"duration"`
}

// Partial reports whether some, but not all, searches failed.
func (r IterationResult) Partial() bool {
	return len(r.SearchFailures) > 0
}

// TerminationReason explains why a session stopped.
type TerminationReason string

const (
	ReasonConfidenceReached TerminationReason = "confidence_reached"
	ReasonMaxIterations     TerminationReason = "max_iterations"
	ReasonExpansionFailed   TerminationReason = "expansion_failed"
	ReasonSearchFailed      TerminationReason = "search_failed"
	ReasonSynthesisFailed   TerminationReason = "synthesis_failed"
	ReasonGapsExhausted     TerminationReason = "gaps_exhausted"
	ReasonCancelled         TerminationReason = "cancelled"
)

// Failed reports whether the session ended because a collaborator failed
// rather than because the loop decided to stop.
func (r TerminationReason) Failed() bool {
	switch r {
	case ReasonExpansionFailed, ReasonSearchFailed, ReasonSynthesisFailed, ReasonCancelled:
		return true
	}
	return false
}

// Source is one entry of the deduplicated source list in a FinalReport.
type Source struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Score     float64  `json:"score"`
	Query     string   `json:"query"`
	Iteration int      `json:"iteration"`
}

// FinalReport is handed to presentation and persistence.
type FinalReport struct {
	ID         string            `json:"id"`
	Seed       string            `json:"seed"`
	Reason     TerminationReason `json:"termination_reason"`
	Confidence float64           `json:"confidence"`
	Narrative  string            `json:"narrative"`
	Gaps       []string          `json:"gaps"`
	Findings   []Finding         `json:"findings,omitempty"`
	Sources    []Source          `json:"sources"`
	Iterations []IterationResult `json:"iterations"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}
