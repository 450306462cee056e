package llm

import (
	"context"

	"weekly-meal-planner/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator generates free-form text from a system and a user prompt.
// The returned content is expected, but never guaranteed, to hold one JSON object.
type TextGenerator interface {
	GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
