package research

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// scriptedCollaborator drives the engine from per-test closures and counts
// every call it receives. All counters are safe for concurrent use.
type scriptedCollaborator struct {
	mu sync.Mutex

	expandFn     func(call int, seed string, gaps []string, count int) ([]string, error)
	searchFn     func(ctx context.Context, query string, max int) ([]Document, error)
	evaluateFn   func(ctx context.Context, doc Document) (*Evaluation, error)
	synthesizeFn func(call int, summaries []EvaluatedSummary, prior string) (*Synthesis, error)

	expandCalls     int
	expandGaps      [][]string
	searchCalls     map[string]int
	evaluateCalls   map[string]int
	synthesizeCalls int
	synthesized     [][]EvaluatedSummary
}

func newScripted() *scriptedCollaborator {
	return &scriptedCollaborator{
		searchCalls:   make(map[string]int),
		evaluateCalls: make(map[string]int),
	}
}

func (s *scriptedCollaborator) Expand(_ context.Context, seed string, gaps []string, count int) ([]string, error) {
	s.mu.Lock()
	s.expandCalls++
	call := s.expandCalls
	s.expandGaps = append(s.expandGaps, gaps)
	s.mu.Unlock()
	return s.expandFn(call, seed, gaps, count)
}

func (s *scriptedCollaborator) Search(ctx context.Context, query string, max int) ([]Document, error) {
	s.mu.Lock()
	s.searchCalls[query]++
	s.mu.Unlock()
	return s.searchFn(ctx, query, max)
}

func (s *scriptedCollaborator) Evaluate(ctx context.Context, doc Document, _ ResearchContext) (*Evaluation, error) {
	s.mu.Lock()
	s.evaluateCalls[doc.URL]++
	s.mu.Unlock()
	return s.evaluateFn(ctx, doc)
}

func (s *scriptedCollaborator) Synthesize(_ context.Context, _ string, summaries []EvaluatedSummary, prior string) (*Synthesis, error) {
	s.mu.Lock()
	s.synthesizeCalls++
	call := s.synthesizeCalls
	s.synthesized = append(s.synthesized, summaries)
	s.mu.Unlock()
	return s.synthesizeFn(call, summaries, prior)
}

func (s *scriptedCollaborator) totalEvaluations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.evaluateCalls {
		total += n
	}
	return total
}

// queriesPerCall returns count distinct queries tagged with the call number.
func queriesPerCall(call int, seed string, _ []string, count int) ([]string, error) {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("%s #%d.%d", seed, call, i)
	}
	return out, nil
}

// docsFor returns n documents whose URLs are unique to query.
func docsFor(query string, n int) []Document {
	slug := strings.NewReplacer(" ", "-", "#", "").Replace(query)
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{
			URL:     fmt.Sprintf("https://example.com/%s/%d", slug, i),
			Title:   fmt.Sprintf("%s result %d", query, i),
			Content: "content",
		}
	}
	return docs
}

// scoreByIndex scores the first keep documents of every query as relevant.
func scoreByIndex(keep int) func(context.Context, Document) (*Evaluation, error) {
	return func(_ context.Context, d Document) (*Evaluation, error) {
		idx, err := strconv.Atoi(d.URL[strings.LastIndex(d.URL, "/")+1:])
		if err != nil {
			return nil, err
		}
		score := 3.0
		if idx < keep {
			score = 8
		}
		return &Evaluation{Score: score, Summary: "summary of " + d.URL, KeyPoints: []string{"point"}}, nil
	}
}

func fixedSynthesis(confidence float64, gaps ...string) func(int, []EvaluatedSummary, string) (*Synthesis, error) {
	return func(call int, summaries []EvaluatedSummary, _ string) (*Synthesis, error) {
		return &Synthesis{
			Narrative:  fmt.Sprintf("draft %d over %d summaries", call, len(summaries)),
			Confidence: confidence,
			Gaps:       gaps,
		}, nil
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CallTimeout = time.Second
	cfg.Retry = RetryPolicy{MaxAttempts: 1}
	return cfg
}

func testEngine(cfg Config, c Collaborator) *ResearchEngine {
	e, err := NewEngine(cfg, c)
	if err != nil {
		panic(err)
	}
	e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return e
}
