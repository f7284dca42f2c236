package analyst

import "github.com/mikeboe/deep-research/pkg/research"

var (
	_ research.Expander    = (*Analyst)(nil)
	_ research.Evaluator   = (*Analyst)(nil)
	_ research.Synthesizer = (*Analyst)(nil)
)

// Collaborator pairs the analyst with a search provider.
func (a *Analyst) Collaborator(s research.Searcher) research.Collaborator {
	return research.Compose(a, s, a, a)
}
