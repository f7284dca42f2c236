// Package analyst implements the research collaborators that need a
// language model: query expansion, document evaluation and synthesis.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// DefaultSnippetLength bounds how much document text is sent for evaluation.
const DefaultSnippetLength = 2000

// Analyst expands queries and synthesizes with the reasoning model, and
// scores documents with the fast one.
type Analyst struct {
	Reasoning     llms.Model
	Fast          llms.Model
	SnippetLength int
	Temperature   float64
}

func New(reasoning, fast llms.Model) *Analyst {
	if fast == nil {
		fast = reasoning
	}
	return &Analyst{
		Reasoning:     reasoning,
		Fast:          fast,
		SnippetLength: DefaultSnippetLength,
		Temperature:   0.7,
	}
}

// generateJSON sends a system prompt with its response schema and decodes
// the model's answer into out.
func (a *Analyst) generateJSON(ctx context.Context, model llms.Model, system, schema, input string, out any) error {
	resp, err := model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system+"\n\n# Response Format:\n"+responseFormat+schema),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}, llms.WithJSONMode(), llms.WithTemperature(a.Temperature))
	if err != nil {
		return fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("llm returned no choices")
	}

	content := stripFences(resp.Choices[0].Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("json parse error: %w (content: %s)", err, truncate(content, 200))
	}
	return nil
}

// stripFences removes a markdown code fence some models wrap JSON in even
// in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 10:
		return 10
	}
	return score
}
