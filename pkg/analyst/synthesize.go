package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

type synthesisResponse struct {
	ExecutiveSummary string `json:"executive_summary"`
	KeyFindings      []struct {
		Theme   string `json:"theme"`
		Finding string `json:"finding"`
	} `json:"key_findings"`
	InformationGaps []string `json:"information_gaps"`
	ConfidenceScore float64  `json:"confidence_score"`
}

type summaryInput struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Score       float64  `json:"relevance_score"`
	Summary     string   `json:"summary"`
	KeyInsights []string `json:"key_insights"`
}

// Synthesize implements research.Synthesizer.
func (a *Analyst) Synthesize(ctx context.Context, seed string, summaries []research.EvaluatedSummary, priorNarrative string) (*research.Synthesis, error) {
	in := make([]summaryInput, len(summaries))
	for i, s := range summaries {
		in[i] = summaryInput{
			URL:         s.Document.URL,
			Title:       s.Document.Title,
			Score:       s.Score,
			Summary:     s.Summary,
			KeyInsights: s.KeyPoints,
		}
	}
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summaries: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n\n", seed)
	if priorNarrative != "" {
		fmt.Fprintf(&b, "Previous draft:\n%s\n\n", priorNarrative)
	}
	fmt.Fprintf(&b, "Source summaries:\n%s", data)

	var resp synthesisResponse
	if err := a.generateJSON(ctx, a.Reasoning, synthesizePrompt, synthesizeSchema, b.String(), &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ExecutiveSummary) == "" {
		return nil, fmt.Errorf("synthesis has no executive summary")
	}

	syn := &research.Synthesis{
		Narrative:  strings.TrimSpace(resp.ExecutiveSummary),
		Confidence: clamp(resp.ConfidenceScore),
	}
	for _, g := range resp.InformationGaps {
		if g = strings.TrimSpace(g); g != "" {
			syn.Gaps = append(syn.Gaps, g)
		}
	}
	for _, f := range resp.KeyFindings {
		syn.Findings = append(syn.Findings, research.Finding{Theme: f.Theme, Finding: f.Finding})
	}
	return syn, nil
}
