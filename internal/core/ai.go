package core

import "context"

// EmbeddingProvider maps text to fixed-dimension vectors. One implementation
// per backing service, selected at construction time.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationProvider produces a completion for a prompt. Used for chat
// answers and structured-extraction prompts alike.
type GenerationProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// MessageSender dispatches an outbound message through the upstream messaging
// provider and returns the provider's message sid.
type MessageSender interface {
	Send(ctx context.Context, to, body string) (providerSid string, err error)
}
