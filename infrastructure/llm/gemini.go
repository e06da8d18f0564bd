package llm

import (
	"context"
	"fmt"

	"carechat/application/ports"
	"carechat/domain/core/valueobjects"

	"google.golang.org/genai"
)

// GeminiBackend streams from the Gemini API. Stateless.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini client for the API key
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Name() string    { return "gemini" }
func (b *GeminiBackend) Stateless() bool { return true }

// StreamGenerate implements ports.Backend
func (b *GeminiBackend) StreamGenerate(ctx context.Context, prompt string, _ valueobjects.SessionKey) <-chan ports.Fragment {
	ch, out := newStream(ctx, b.Name())

	go func() {
		defer close(ch)

		for resp, err := range b.client.Models.GenerateContentStream(ctx, b.model, genai.Text(prompt), nil) {
			if err != nil {
				out.fail(fmt.Errorf("generate content: %w", err))
				return
			}
			if !out.text(resp.Text()) {
				return
			}
		}
	}()
	return ch
}

// Generate implements ports.Backend
func (b *GeminiBackend) Generate(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error) {
	return ports.Drain(ctx, b.StreamGenerate(ctx, prompt, key))
}
