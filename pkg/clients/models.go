package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/deep-research/pkg/config"
)

// Models holds the two model tiers the analyst uses: a reasoning model for
// query expansion and synthesis, and a fast model for per-document scoring.
type Models struct {
	Reasoning llms.Model
	Fast      llms.Model
}

// New builds both model tiers for the configured LLM provider.
func New(ctx context.Context, cfg *config.Config) (*Models, error) {
	reasoning, err := model(ctx, cfg, cfg.ReasoningModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning model: %w", err)
	}
	fast, err := model(ctx, cfg, cfg.FastModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast model: %w", err)
	}
	return &Models{Reasoning: reasoning, Fast: fast}, nil
}

func model(ctx context.Context, cfg *config.Config, name string) (llms.Model, error) {
	switch cfg.LLMProvider {
	case config.LLMAnthropic:
		// Gemini defaults make no sense for Claude.
		if strings.HasPrefix(name, "gemini") {
			name = ""
		}
		return AnthropicAI(cfg.AnthropicKey, name)
	case config.LLMGoogle, "":
		return GoogleAi(ctx, cfg.GoogleApiKey, name)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}
