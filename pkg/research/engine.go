package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Decision is the outcome of the stop check after each iteration.
type Decision int

const (
	Continue Decision = iota
	Stop
)

func (d Decision) String() string {
	if d == Continue {
		return "continue"
	}
	return "stop"
}

type ResearchEngine struct {
	Config       Config
	Collaborator Collaborator
	Logger       *slog.Logger
	// OnIteration is called after each iteration is recorded.
	OnIteration func(result IterationResult)
}

// queryBasis is what the Expander is asked to work from.
type queryBasis struct {
	Iteration int
	Seed      string
	Gaps      []string
}

func NewEngine(cfg Config, c Collaborator) (*ResearchEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid research config: %w", err)
	}
	if c == nil {
		return nil, errors.New("collaborator is required")
	}
	return &ResearchEngine{
		Config:       cfg,
		Collaborator: c,
		Logger:       slog.Default(),
	}, nil
}

// Run researches seed until the stop check says so or a session-fatal error
// occurs. A report is returned in both cases; the error is only non-nil for
// a blank seed or a cancelled context.
func (e *ResearchEngine) Run(ctx context.Context, seed string) (*FinalReport, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, ErrEmptySeed
	}

	s := newSession(seed)
	e.Logger.Info("Starting research loop", "session", s.id, "seed", seed, "max_iterations", e.Config.MaxIterations)

	basis := queryBasis{Iteration: 1, Seed: seed}
	for {
		if err := ctx.Err(); err != nil {
			s.terminate(ReasonCancelled, err)
			break
		}

		result, err := e.runIteration(ctx, s, basis)
		if err != nil {
			reason := reasonFor(err)
			if ctx.Err() != nil {
				reason = ReasonCancelled
			}
			e.Logger.Error("Iteration failed", "iteration", basis.Iteration, "reason", reason, "error", err)
			s.terminate(reason, err)
			break
		}

		if e.OnIteration != nil {
			e.OnIteration(result)
		}

		decision, reason := e.decide(s)
		e.Logger.Info("Iteration complete",
			"iteration", result.Index,
			"retained", len(result.Retained),
			"total_sources", s.count(),
			"confidence", result.Confidence,
			"gaps", len(result.Gaps),
			"decision", decision,
		)
		if decision == Stop {
			s.terminate(reason, nil)
			break
		}

		basis = queryBasis{Iteration: len(s.iterations) + 1, Seed: seed, Gaps: result.Gaps}
	}

	report := s.report()
	e.Logger.Info("Research finished",
		"session", s.id,
		"reason", report.Reason,
		"iterations", len(report.Iterations),
		"sources", len(report.Sources),
		"confidence", report.Confidence,
	)
	if report.Reason == ReasonCancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// runIteration performs expand, search, dedup, evaluate, synthesize and
// record. Any returned error is session-fatal; isolated failures are kept
// in the result instead.
func (e *ResearchEngine) runIteration(ctx context.Context, s *session, basis queryBasis) (IterationResult, error) {
	start := time.Now()
	result := IterationResult{Index: basis.Iteration}
	e.Logger.Info("Starting iteration", "iteration", basis.Iteration, "max", e.Config.MaxIterations)

	queries, err := e.expand(ctx, basis)
	if err != nil {
		return result, err
	}
	result.Queries = queries

	docs, failures, err := e.search(ctx, basis.Iteration, queries)
	result.SearchFailures = failures
	if err != nil {
		return result, err
	}
	result.Documents = withoutContent(docs)

	candidates := s.candidates(docs)
	result.Candidates = len(candidates)

	kept, failed := e.evaluate(ctx, s.seed, candidates)
	// A cancelled fan-out fails every evaluation; that is not a completed iteration.
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result.EvaluationFailures = failed
	for _, sum := range kept {
		if s.retain(sum) {
			result.Retained = append(result.Retained, sum)
		}
	}

	if s.count() == 0 {
		e.Logger.Info("Nothing retained yet, skipping synthesis", "iteration", basis.Iteration)
	} else {
		syn, err := e.synthesize(ctx, s, basis.Iteration)
		if err != nil {
			return result, err
		}
		result.Synthesis = syn
		result.Confidence = syn.Confidence
		result.Gaps = syn.Gaps
	}

	result.Duration = time.Since(start)
	s.record(result)
	return result, nil
}

// decide applies the stop policy to the latest iteration. The iteration
// ceiling is absolute. When confidence is low but no gaps are named,
// gaps_exhausted is reported even on the last allowed iteration.
func (e *ResearchEngine) decide(s *session) (Decision, TerminationReason) {
	last, ok := s.last()
	n := len(s.iterations)
	if !ok {
		return Continue, ""
	}

	if last.Synthesis == nil {
		if n >= e.Config.MaxIterations {
			return Stop, ReasonMaxIterations
		}
		return Continue, ""
	}

	lowConfidence := last.Confidence < e.Config.MinConfidence
	hasGaps := len(last.Gaps) > 0

	wantMore := lowConfidence && hasGaps
	if e.Config.GapsForceContinue {
		wantMore = hasGaps
	}

	switch {
	case wantMore && n < e.Config.MaxIterations:
		return Continue, ""
	case wantMore:
		return Stop, ReasonMaxIterations
	case !lowConfidence:
		return Stop, ReasonConfidenceReached
	default:
		return Stop, ReasonGapsExhausted
	}
}

func (e *ResearchEngine) policy(op string, attempts int) callPolicy {
	return callPolicy{
		timeout:  e.Config.CallTimeout,
		retry:    e.Config.Retry,
		attempts: attempts,
		notify: func(err error, next time.Duration) {
			e.Logger.Warn("Retrying collaborator call", "op", op, "in", next, "error", err)
		},
	}
}

func (e *ResearchEngine) expand(ctx context.Context, basis queryBasis) ([]Query, error) {
	e.Logger.Info("Expanding query", "iteration", basis.Iteration, "gaps", len(basis.Gaps))

	raw, err := invoke(ctx, e.policy("expand", e.Config.Retry.MaxAttempts), func(ctx context.Context) ([]string, error) {
		return e.Collaborator.Expand(ctx, basis.Seed, basis.Gaps, e.Config.MaxQueries)
	})
	if err != nil {
		return nil, &ExpansionError{Iteration: basis.Iteration, Err: err}
	}

	parent := ""
	if basis.Iteration > 1 {
		parent = basis.Seed
	}

	seen := make(map[string]bool, len(raw))
	queries := make([]Query, 0, len(raw))
	for _, text := range raw {
		text = strings.TrimSpace(text)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		queries = append(queries, Query{Text: text, Iteration: basis.Iteration, Parent: parent})
		if len(queries) == e.Config.MaxQueries {
			break
		}
	}
	if len(queries) == 0 {
		return nil, &ExpansionError{Iteration: basis.Iteration, Err: ErrNoQueries}
	}

	e.Logger.Info("Generated queries", "count", len(queries), "requested", e.Config.MaxQueries)
	return queries, nil
}

func (e *ResearchEngine) search(ctx context.Context, iteration int, queries []Query) ([]Document, []QueryFailure, error) {
	e.Logger.Info("Starting search fan-out", "queries", len(queries))

	p := e.policy("search", e.Config.Retry.MaxAttempts)
	outcomes := fanOut(ctx, queries, e.Config.MaxConcurrency, func(ctx context.Context, q Query) ([]Document, error) {
		return invoke(ctx, p, func(ctx context.Context) ([]Document, error) {
			return e.Collaborator.Search(ctx, q.Text, e.Config.MaxResultsPerQuery)
		})
	})

	var (
		docs     []Document
		failures []QueryFailure
		errs     []error
	)
	for i, o := range outcomes {
		q := queries[i]
		if o.Err != nil {
			serr := &SearchError{Query: q.Text, Err: o.Err}
			e.Logger.Warn("Search failed", "query", q.Text, "error", o.Err)
			failures = append(failures, QueryFailure{Query: q.Text, Error: o.Err.Error()})
			errs = append(errs, serr)
			continue
		}

		hits := o.Value
		if len(hits) > e.Config.MaxResultsPerQuery {
			hits = hits[:e.Config.MaxResultsPerQuery]
		}
		for _, d := range hits {
			d.URL = strings.TrimSpace(d.URL)
			if d.URL == "" {
				continue
			}
			d.Query = q.Text
			d.Iteration = iteration
			docs = append(docs, d)
		}
		e.Logger.Info("Search successful", "query", q.Text, "count", len(hits))
	}

	if len(failures) == len(queries) {
		return nil, failures, fmt.Errorf("%w: %w", ErrAllSearchesFailed, errors.Join(errs...))
	}
	return docs, failures, nil
}

// withoutContent copies docs for the trace. Page text is only kept on
// retained summaries.
func withoutContent(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		d.Content = ""
		out[i] = d
	}
	return out
}

func (e *ResearchEngine) evaluate(ctx context.Context, seed string, candidates []Document) ([]EvaluatedSummary, int) {
	e.Logger.Info("Starting evaluation fan-out", "candidates", len(candidates))

	p := e.policy("evaluate", 1)
	outcomes := fanOut(ctx, candidates, e.Config.MaxConcurrency, func(ctx context.Context, d Document) (*Evaluation, error) {
		return invoke(ctx, p, func(ctx context.Context) (*Evaluation, error) {
			return e.Collaborator.Evaluate(ctx, d, ResearchContext{Seed: seed, Query: d.Query, Iteration: d.Iteration})
		})
	})

	var (
		kept   []EvaluatedSummary
		failed int
	)
	for i, o := range outcomes {
		d := candidates[i]
		if o.Err != nil || o.Value == nil {
			failed++
			if o.Err != nil {
				e.Logger.Warn("Evaluation failed", "error", &EvaluationError{URL: d.URL, Err: o.Err})
			}
			continue
		}
		if o.Value.Score < e.Config.MinRelevance {
			e.Logger.Debug("Dropping document below relevance threshold", "url", d.URL, "score", o.Value.Score)
			continue
		}
		kept = append(kept, EvaluatedSummary{
			Document:  d,
			Score:     o.Value.Score,
			Summary:   o.Value.Summary,
			KeyPoints: o.Value.KeyPoints,
		})
	}

	e.Logger.Info("Evaluation complete", "total", len(candidates), "relevant", len(kept), "failed", failed)
	return kept, failed
}

func (e *ResearchEngine) synthesize(ctx context.Context, s *session, iteration int) (*Synthesis, error) {
	e.Logger.Info("Synthesizing", "iteration", iteration, "summaries", s.count())

	syn, err := invoke(ctx, e.policy("synthesize", e.Config.Retry.MaxAttempts), func(ctx context.Context) (*Synthesis, error) {
		return e.Collaborator.Synthesize(ctx, s.seed, s.summaries(), s.narrative())
	})
	if err != nil {
		return nil, &SynthesisError{Iteration: iteration, Err: err}
	}
	if syn == nil {
		return nil, &SynthesisError{Iteration: iteration, Err: errors.New("synthesizer returned no result")}
	}
	return syn, nil
}
