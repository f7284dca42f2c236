package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

type evaluationResponse struct {
	RelevanceScore float64  `json:"relevance_score"`
	IsRelevant     *bool    `json:"is_relevant"`
	Summary        string   `json:"summary"`
	KeyInsights    []string `json:"key_insights"`
}

// Evaluate implements research.Evaluator. Content is cut to SnippetLength
// runes. A document the model marks as not relevant scores zero.
func (a *Analyst) Evaluate(ctx context.Context, doc research.Document, rc research.ResearchContext) (*research.Evaluation, error) {
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return nil, fmt.Errorf("document %s has no content", doc.URL)
	}

	input := fmt.Sprintf("Original research question: %s\nSearch query: %s\nURL: %s\nTitle: %s\n\nContent:\n%s",
		rc.Seed, rc.Query, doc.URL, doc.Title, truncate(content, a.SnippetLength))

	var resp evaluationResponse
	if err := a.generateJSON(ctx, a.Fast, evaluatePrompt, evaluateSchema, input, &resp); err != nil {
		return nil, err
	}

	score := clamp(resp.RelevanceScore)
	if resp.IsRelevant != nil && !*resp.IsRelevant {
		score = 0
	}
	return &research.Evaluation{
		Score:     score,
		Summary:   strings.TrimSpace(resp.Summary),
		KeyPoints: resp.KeyInsights,
	}, nil
}
