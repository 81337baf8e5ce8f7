package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// All providers (Gemini, Ollama, OpenAI-compatible) implement this
// interface; the orchestrator treats the model as a black box and converts
// any failure into its degraded-reply path.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
