package research

import "context"

// ResearchContext is passed to the Evaluator alongside each document.
type ResearchContext struct {
	Seed      string
	Query     string
	Iteration int
}

// Expander derives up to count search queries from the seed. Gaps is empty
// on the first iteration and holds the previous synthesis gaps afterwards.
type Expander interface {
	Expand(ctx context.Context, seed string, gaps []string, count int) ([]string, error)
}

// Searcher returns candidate documents for one query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Document, error)
}

// Evaluator scores and summarizes one document. A nil Evaluation means the
// document could not be judged.
type Evaluator interface {
	Evaluate(ctx context.Context, doc Document, rc ResearchContext) (*Evaluation, error)
}

// Synthesizer turns the cumulative summaries into a draft report.
type Synthesizer interface {
	Synthesize(ctx context.Context, seed string, summaries []EvaluatedSummary, priorNarrative string) (*Synthesis, error)
}

// Collaborator bundles every external capability the engine consumes.
type Collaborator interface {
	Expander
	Searcher
	Evaluator
	Synthesizer
}

type composite struct {
	Expander
	Searcher
	Evaluator
	Synthesizer
}

// Compose builds a Collaborator out of independent providers, e.g. an LLM
// for expansion, evaluation and synthesis and a web API for search.
func Compose(e Expander, s Searcher, ev Evaluator, sy Synthesizer) Collaborator {
	return composite{Expander: e, Searcher: s, Evaluator: ev, Synthesizer: sy}
}
