package research

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func searchDocs(n int) func(context.Context, string, int) ([]Document, error) {
	return func(_ context.Context, q string, _ int) ([]Document, error) {
		return docsFor(q, n), nil
	}
}

func TestRunConfidenceReachedFirstIteration(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(20)
	c.evaluateFn = scoreByIndex(5)
	c.synthesizeFn = fixedSynthesis(8)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "renewable energy trends")
	require.NoError(t, err)

	require.Len(t, report.Iterations, 1)
	it := report.Iterations[0]
	assert.Equal(t, 1, it.Index)
	assert.Len(t, it.Queries, 3)
	assert.Len(t, it.Documents, 60)
	assert.Equal(t, 60, it.Candidates)
	assert.Len(t, it.Retained, 15)
	assert.False(t, it.Partial())

	assert.Equal(t, ReasonConfidenceReached, report.Reason)
	assert.Equal(t, 8.0, report.Confidence)
	assert.Len(t, report.Sources, 15)
	assert.Equal(t, "draft 1 over 15 summaries", report.Narrative)
	assert.Empty(t, report.Error)
	assert.Equal(t, 60, c.totalEvaluations())
}

func TestRunStopsAtMaxIterations(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(20)
	c.evaluateFn = scoreByIndex(5)
	c.synthesizeFn = fixedSynthesis(5, "cost data", "regional adoption")

	report, err := testEngine(testConfig(), c).Run(context.Background(), "renewable energy trends")
	require.NoError(t, err)

	assert.Equal(t, ReasonMaxIterations, report.Reason)
	require.Len(t, report.Iterations, 3)
	assert.Len(t, report.Sources, 45)
	for i, it := range report.Iterations {
		assert.Equal(t, i+1, it.Index)
		assert.Len(t, it.Retained, 15)
	}

	// Refinement iterations are seeded with the previous gaps, and the
	// synthesizer always sees the cumulative set.
	require.Len(t, c.expandGaps, 3)
	assert.Empty(t, c.expandGaps[0])
	assert.Equal(t, []string{"cost data", "regional adoption"}, c.expandGaps[1])
	assert.Equal(t, []string{"cost data", "regional adoption"}, c.expandGaps[2])
	require.Len(t, c.synthesized, 3)
	assert.Len(t, c.synthesized[0], 15)
	assert.Len(t, c.synthesized[1], 30)
	assert.Len(t, c.synthesized[2], 45)

	assert.Empty(t, report.Iterations[0].Queries[0].Parent)
	assert.Equal(t, "renewable energy trends", report.Iterations[1].Queries[0].Parent)
}

func TestRunExpansionReturnsNothing(t *testing.T) {
	c := newScripted()
	c.expandFn = func(int, string, []string, int) ([]string, error) { return nil, nil }
	c.searchFn = searchDocs(1)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "renewable energy trends")
	require.NoError(t, err)

	assert.Equal(t, ReasonExpansionFailed, report.Reason)
	assert.True(t, report.Reason.Failed())
	assert.Empty(t, report.Iterations)
	assert.Zero(t, report.Confidence)
	assert.Empty(t, report.Narrative)
	assert.Contains(t, report.Error, ErrNoQueries.Error())
	assert.Empty(t, c.searchCalls)
}

func TestRunExpansionBlankQueriesAreUnusable(t *testing.T) {
	c := newScripted()
	c.expandFn = func(int, string, []string, int) ([]string, error) { return []string{"", "   "}, nil }

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpansionFailed, report.Reason)
}

func TestRunExpansionErrorIsRetriedThenFatal(t *testing.T) {
	c := newScripted()
	c.expandFn = func(int, string, []string, int) ([]string, error) { return nil, errors.New("quota exceeded") }

	cfg := testConfig()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	report, err := testEngine(cfg, c).Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpansionFailed, report.Reason)
	assert.Contains(t, report.Error, "quota exceeded")
	assert.Equal(t, 3, c.expandCalls)
}

func TestRunExpansionFailureAfterProgressKeepsReport(t *testing.T) {
	c := newScripted()
	c.expandFn = func(call int, seed string, gaps []string, count int) ([]string, error) {
		if call > 1 {
			return nil, nil
		}
		return queriesPerCall(call, seed, gaps, count)
	}
	c.searchFn = searchDocs(4)
	c.evaluateFn = scoreByIndex(2)
	c.synthesizeFn = fixedSynthesis(4, "gap")

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, ReasonExpansionFailed, report.Reason)
	assert.Len(t, report.Iterations, 1)
	assert.Len(t, report.Sources, 6)
	assert.Equal(t, 4.0, report.Confidence)
	assert.NotEmpty(t, report.Narrative)
}

func TestRunFewerQueriesThanRequested(t *testing.T) {
	c := newScripted()
	c.expandFn = func(int, string, []string, int) ([]string, error) { return []string{"only one"}, nil }
	c.searchFn = searchDocs(3)
	c.evaluateFn = scoreByIndex(3)
	c.synthesizeFn = fixedSynthesis(9)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	require.Len(t, report.Iterations, 1)
	assert.Len(t, report.Iterations[0].Queries, 1)
	assert.Len(t, report.Sources, 3)
}

func TestRunBoundsQueriesAndResults(t *testing.T) {
	c := newScripted()
	c.expandFn = func(int, string, []string, int) ([]string, error) {
		return []string{"a", "a", "b", "c", "d", "e"}, nil
	}
	c.searchFn = searchDocs(50)
	c.evaluateFn = scoreByIndex(100)
	c.synthesizeFn = fixedSynthesis(9)

	cfg := testConfig()
	cfg.MaxQueries = 2
	cfg.MaxResultsPerQuery = 4

	report, err := testEngine(cfg, c).Run(context.Background(), "seed")
	require.NoError(t, err)
	require.Len(t, report.Iterations, 1)
	it := report.Iterations[0]
	require.Len(t, it.Queries, 2)
	assert.Equal(t, "a", it.Queries[0].Text)
	assert.Equal(t, "b", it.Queries[1].Text)
	assert.Len(t, it.Documents, 8)
}

func TestRunPartialSearchFailure(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = func(ctx context.Context, q string, _ int) ([]Document, error) {
		if q == "seed #1.0" {
			return docsFor(q, 10), nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c.evaluateFn = scoreByIndex(10)
	c.synthesizeFn = fixedSynthesis(9)

	cfg := testConfig()
	cfg.CallTimeout = 50 * time.Millisecond

	report, err := testEngine(cfg, c).Run(context.Background(), "seed")
	require.NoError(t, err)

	require.Len(t, report.Iterations, 1)
	it := report.Iterations[0]
	assert.True(t, it.Partial())
	assert.Len(t, it.SearchFailures, 2)
	assert.Len(t, it.Documents, 10)
	assert.Len(t, it.Retained, 10)
	assert.Equal(t, ReasonConfidenceReached, report.Reason)
}

func TestRunAllSearchesFail(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = func(context.Context, string, int) ([]Document, error) {
		return nil, errors.New("upstream 503")
	}

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, ReasonSearchFailed, report.Reason)
	assert.Empty(t, report.Iterations)
	assert.Zero(t, report.Confidence)
	assert.Contains(t, report.Error, "upstream 503")
	assert.Zero(t, c.totalEvaluations())
}

func TestRunDeduplicatesBeforeEvaluation(t *testing.T) {
	shared := Document{URL: "https://example.com/shared", Title: "shared"}
	c := newScripted()
	c.expandFn = func(int, string, []string, int) ([]string, error) { return []string{"q1", "q2"}, nil }
	c.searchFn = func(_ context.Context, q string, _ int) ([]Document, error) {
		return append(docsFor(q, 2), shared), nil
	}
	c.evaluateFn = func(context.Context, Document) (*Evaluation, error) {
		return &Evaluation{Score: 7, Summary: "s"}, nil
	}
	c.synthesizeFn = fixedSynthesis(9)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)

	assert.Equal(t, 1, c.evaluateCalls[shared.URL])
	assert.Equal(t, 5, report.Iterations[0].Candidates)
	count := 0
	for _, s := range report.Sources {
		if s.URL == shared.URL {
			count++
			assert.Equal(t, "q1", s.Query)
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, report.Sources, 5)
}

func TestRunRetainedSummaryIsNeverReplaced(t *testing.T) {
	shared := "https://example.com/shared"
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = func(_ context.Context, q string, _ int) ([]Document, error) {
		return append(docsFor(q, 1), Document{URL: shared, Title: q}), nil
	}
	c.evaluateFn = func(_ context.Context, d Document) (*Evaluation, error) {
		return &Evaluation{Score: 9, Summary: "first pass of " + d.Title}, nil
	}
	c.synthesizeFn = fixedSynthesis(3, "more")

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	require.Len(t, report.Iterations, 3)

	assert.Equal(t, 1, c.evaluateCalls[shared])
	for _, s := range report.Sources {
		if s.URL == shared {
			assert.Equal(t, "first pass of seed #1.0", s.Summary)
			assert.Equal(t, 1, s.Iteration)
		}
	}
	assert.Len(t, report.Sources, 1+3*3)
}

func TestRunEvaluationFailuresAreIsolated(t *testing.T) {
	c := newScripted()
	c.expandFn = func(int, string, []string, int) ([]string, error) { return []string{"q"}, nil }
	c.searchFn = searchDocs(4)
	c.evaluateFn = func(_ context.Context, d Document) (*Evaluation, error) {
		switch d.URL {
		case "https://example.com/q/0":
			return nil, errors.New("model overloaded")
		case "https://example.com/q/1":
			return nil, nil
		case "https://example.com/q/2":
			panic("bad document")
		}
		return &Evaluation{Score: 6, Summary: "kept"}, nil
	}
	c.synthesizeFn = fixedSynthesis(9)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	it := report.Iterations[0]
	assert.Equal(t, 3, it.EvaluationFailures)
	require.Len(t, it.Retained, 1)
	assert.Equal(t, "https://example.com/q/3", it.Retained[0].Document.URL)
}

func TestRunSkipsSynthesisWithNothingRetained(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(2)
	c.evaluateFn = func(_ context.Context, d Document) (*Evaluation, error) {
		if d.Iteration == 1 {
			return &Evaluation{Score: 1}, nil
		}
		return &Evaluation{Score: 10, Summary: "good"}, nil
	}
	c.synthesizeFn = fixedSynthesis(8)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)

	require.Len(t, report.Iterations, 2)
	assert.Nil(t, report.Iterations[0].Synthesis)
	assert.Zero(t, report.Iterations[0].Confidence)
	assert.NotNil(t, report.Iterations[1].Synthesis)
	assert.Equal(t, 1, c.synthesizeCalls)
	assert.Equal(t, ReasonConfidenceReached, report.Reason)
	// Nothing was known after iteration 1, so iteration 2 expands from the seed again.
	assert.Empty(t, c.expandGaps[1])
}

func TestRunNothingEverRetained(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(2)
	c.evaluateFn = func(context.Context, Document) (*Evaluation, error) { return &Evaluation{Score: 0}, nil }

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxIterations, report.Reason)
	assert.Len(t, report.Iterations, 3)
	assert.Zero(t, report.Confidence)
	assert.Empty(t, report.Sources)
	assert.Zero(t, c.synthesizeCalls)
}

func TestRunSynthesisFailureIsFatal(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(2)
	c.evaluateFn = scoreByIndex(2)
	c.synthesizeFn = func(int, []EvaluatedSummary, string) (*Synthesis, error) {
		return nil, errors.New("context window exceeded")
	}

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, ReasonSynthesisFailed, report.Reason)
	assert.Empty(t, report.Iterations)
	assert.Len(t, report.Sources, 6)
	assert.Contains(t, report.Error, "context window exceeded")
}

func TestRunLowConfidenceWithoutGaps(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(1)
	c.evaluateFn = scoreByIndex(1)
	c.synthesizeFn = fixedSynthesis(4)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, ReasonGapsExhausted, report.Reason)
	assert.False(t, report.Reason.Failed())
	assert.Len(t, report.Iterations, 1)
}

func TestRunNeverExceedsMaxIterations(t *testing.T) {
	for max := 1; max <= 5; max++ {
		c := newScripted()
		c.expandFn = queriesPerCall
		c.searchFn = searchDocs(2)
		c.evaluateFn = scoreByIndex(1)
		c.synthesizeFn = fixedSynthesis(1, "always a gap")

		cfg := testConfig()
		cfg.MaxIterations = max
		report, err := testEngine(cfg, c).Run(context.Background(), "seed")
		require.NoError(t, err)
		assert.Len(t, report.Iterations, max)
		assert.Equal(t, max, c.expandCalls)

		seen := make(map[string]bool)
		for _, s := range report.Sources {
			assert.False(t, seen[s.URL], "duplicate source %s", s.URL)
			seen[s.URL] = true
		}
	}
}

func TestRunCallsOnIteration(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(1)
	c.evaluateFn = scoreByIndex(1)
	c.synthesizeFn = fixedSynthesis(2, "gap")

	e := testEngine(testConfig(), c)
	var seen []int
	e.OnIteration = func(r IterationResult) { seen = append(seen, r.Index) }

	_, err := e.Run(context.Background(), "seed")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestRunCancelled(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := testEngine(testConfig(), c).Run(ctx, "seed")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, ReasonCancelled, report.Reason)
	assert.Zero(t, c.expandCalls)
}

func TestTraceDocumentsOmitContent(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = searchDocs(4)
	c.evaluateFn = scoreByIndex(2)
	c.synthesizeFn = fixedSynthesis(9)

	report, err := testEngine(testConfig(), c).Run(context.Background(), "seed")
	require.NoError(t, err)
	require.Len(t, report.Iterations, 1)

	it := report.Iterations[0]
	require.NotEmpty(t, it.Documents)
	for _, d := range it.Documents {
		assert.Empty(t, d.Content, d.URL)
		assert.NotEmpty(t, d.Query)
	}
	require.NotEmpty(t, it.Retained)
	for _, sum := range it.Retained {
		assert.Equal(t, "content", sum.Document.Content)
	}

	raw, err := json.Marshal(it.Documents)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"content"`)
}

func TestRunCancelledDuringEvaluationRecordsNothing(t *testing.T) {
	c := newScripted()
	c.expandFn = queriesPerCall
	c.searchFn = func(_ context.Context, q string, _ int) ([]Document, error) { return docsFor(q, 2), nil }
	c.synthesizeFn = fixedSynthesis(9)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.evaluateFn = func(ctx context.Context, _ Document) (*Evaluation, error) {
		cancel()
		return nil, ctx.Err()
	}

	e := testEngine(testConfig(), c)
	var recorded int
	e.OnIteration = func(IterationResult) { recorded++ }

	report, err := e.Run(ctx, "seed")
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, ReasonCancelled, report.Reason)
	assert.Empty(t, report.Iterations)
	assert.Empty(t, report.Sources)
	assert.Zero(t, recorded)
	assert.Zero(t, c.synthesizeCalls)
}

func TestRunEmptySeed(t *testing.T) {
	_, err := testEngine(testConfig(), newScripted()).Run(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptySeed)
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 0
	_, err := NewEngine(cfg, newScripted())
	require.Error(t, err)

	_, err = NewEngine(testConfig(), nil)
	require.Error(t, err)
}

func TestDecide(t *testing.T) {
	syn := func(conf float64, gaps ...string) IterationResult {
		return IterationResult{Synthesis: &Synthesis{Confidence: conf, Gaps: gaps}, Confidence: conf, Gaps: gaps}
	}

	tests := []struct {
		name       string
		gapsForce  bool
		iterations []IterationResult
		want       Decision
		reason     TerminationReason
	}{
		{"high confidence no gaps", false, []IterationResult{syn(8)}, Stop, ReasonConfidenceReached},
		{"high confidence with gaps", false, []IterationResult{syn(8, "g")}, Stop, ReasonConfidenceReached},
		{"threshold is inclusive", false, []IterationResult{syn(7, "g")}, Stop, ReasonConfidenceReached},
		{"low confidence with gaps", false, []IterationResult{syn(5, "g")}, Continue, ""},
		{"low confidence no gaps", false, []IterationResult{syn(5)}, Stop, ReasonGapsExhausted},
		{"ceiling", false, []IterationResult{syn(5, "g"), syn(5, "g"), syn(5, "g")}, Stop, ReasonMaxIterations},
		{"no gaps at ceiling", false, []IterationResult{syn(5, "g"), syn(5, "g"), syn(5)}, Stop, ReasonGapsExhausted},
		{"skipped synthesis", false, []IterationResult{{}}, Continue, ""},
		{"skipped synthesis at ceiling", false, []IterationResult{{}, {}, {}}, Stop, ReasonMaxIterations},
		{"gaps force continue", true, []IterationResult{syn(9, "g")}, Continue, ""},
		{"gaps force continue stops without gaps", true, []IterationResult{syn(9)}, Stop, ReasonConfidenceReached},
		{"gaps force continue ceiling", true, []IterationResult{syn(9, "g"), syn(9, "g"), syn(9, "g")}, Stop, ReasonMaxIterations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.GapsForceContinue = tt.gapsForce
			e := testEngine(cfg, newScripted())

			s := newSession("seed")
			for _, r := range tt.iterations {
				s.record(r)
			}
			got, reason := e.decide(s)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
