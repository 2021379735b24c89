// Package llm holds the Gemini-backed providers: one for chunk and query
// embedding, one for answer generation. Both dial the same client and fall
// back to project default models when the config leaves the name empty.
package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultEmbedModel = "text-embedding-004"
	defaultGenModel   = "gemini-1.5-flash"
)

// dial opens a Gemini client. An empty key falls back to GEMINI_API_KEY so
// local runs work without threading it through config.
func dial(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}
