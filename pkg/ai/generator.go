package ai

import "context"

// TextGenerator generates text from a system prompt and a user prompt.
// Both supported providers (Gemini, OpenAI-compatible) implement this
// interface; callers treat the model as an opaque prompt-in/text-out
// collaborator.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
