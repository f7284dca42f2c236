package research

import (
	"time"

	"github.com/google/uuid"
)

// session is the engine's only mutable state. It is created by Run, touched
// only from Run's goroutine, and never shared with fan-out workers.
type session struct {
	id         string
	seed       string
	startedAt  time.Time
	iterations []IterationResult
	retained   map[string]EvaluatedSummary
	order      []string
	latest     *Synthesis
	reason     TerminationReason
	err        error
}

func newSession(seed string) *session {
	return &session{
		id:        uuid.NewString(),
		seed:      seed,
		startedAt: time.Now(),
		retained:  make(map[string]EvaluatedSummary),
	}
}

func (s *session) has(url string) bool {
	_, ok := s.retained[url]
	return ok
}

// retain stores sum unless its URL is already present. First seen wins.
func (s *session) retain(sum EvaluatedSummary) bool {
	if s.has(sum.Document.URL) {
		return false
	}
	s.retained[sum.Document.URL] = sum
	s.order = append(s.order, sum.Document.URL)
	return true
}

func (s *session) count() int { return len(s.order) }

// summaries returns the retained set in retention order.
func (s *session) summaries() []EvaluatedSummary {
	out := make([]EvaluatedSummary, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.retained[url])
	}
	return out
}

// candidates drops documents already retained and collapses duplicates
// within the batch, keeping the first occurrence.
func (s *session) candidates(docs []Document) []Document {
	seen := make(map[string]bool, len(docs))
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if s.has(d.URL) || seen[d.URL] {
			continue
		}
		seen[d.URL] = true
		out = append(out, d)
	}
	return out
}

func (s *session) narrative() string {
	if s.latest == nil {
		return ""
	}
	return s.latest.Narrative
}

func (s *session) record(r IterationResult) {
	s.iterations = append(s.iterations, r)
	if r.Synthesis != nil {
		s.latest = r.Synthesis
	}
}

func (s *session) last() (IterationResult, bool) {
	if len(s.iterations) == 0 {
		return IterationResult{}, false
	}
	return s.iterations[len(s.iterations)-1], true
}

func (s *session) terminate(reason TerminationReason, err error) {
	s.reason = reason
	s.err = err
}

func (s *session) report() *FinalReport {
	r := &FinalReport{
		ID:         s.id,
		Seed:       s.seed,
		Reason:     s.reason,
		Sources:    make([]Source, 0, len(s.order)),
		Iterations: append([]IterationResult(nil), s.iterations...),
		StartedAt:  s.startedAt,
		FinishedAt: time.Now(),
	}
	if s.latest != nil {
		r.Confidence = s.latest.Confidence
		r.Narrative = s.latest.Narrative
		r.Gaps = s.latest.Gaps
		r.Findings = s.latest.Findings
	}
	if s.err != nil {
		r.Error = s.err.Error()
	}
	for _, sum := range s.summaries() {
		r.Sources = append(r.Sources, Source{
			URL:       sum.Document.URL,
			Title:     sum.Document.Title,
			Summary:   sum.Summary,
			KeyPoints: sum.KeyPoints,
			Score:     sum.Score,
			Query:     sum.Document.Query,
			Iteration: sum.Document.Iteration,
		})
	}
	return r
}
