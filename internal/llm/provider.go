package llm

import (
	"context"

	"weekly-meal-planner/internal/config"
)

// NewFromConfig picks the text generator described by cfg.
// It returns a nil generator when no backend key is configured; callers
// treat that as "generation unavailable" and use deterministic plans.
func NewFromConfig(ctx context.Context, cfg *config.Config) (TextGenerator, error) {
	useGemini := cfg.GeminiAPIKey != ""
	useGroq := cfg.GroqAPIKey != ""

	switch cfg.LLMProvider {
	case config.ProviderGemini:
		useGroq = false
	case config.ProviderGroq:
		useGemini = false
	}

	switch {
	case useGemini:
		client, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case useGroq:
		return NewGroqClient(cfg), nil
	default:
		return nil, nil
	}
}
