package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/nexdesk-ai/nexdesk/internal/core"
)

// GeminiLLM generates grounded answers for chat turns and previews.
type GeminiLLM struct {
	client *genai.Client
	model  string
}

func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	cl, err := dial(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("dial gemini: %w", err)
	}
	if model == "" {
		model = defaultGenModel
	}
	return &GeminiLLM{client: cl, model: model}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate sends the persona as a model-level system instruction and the
// grounded question as the single user part, then concatenates the text
// parts of the first candidate. A blocked or empty candidate yields an
// empty reply, not an error; the caller decides how to present that.
func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.GenerationProvider = (*GeminiLLM)(nil)
