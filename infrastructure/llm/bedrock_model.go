package llm

import (
	"context"
	"fmt"

	"carechat/application/ports"
	"carechat/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockModelBackend streams from a foundation model through the Converse
// API. It has no memory; the session key is ignored.
type BedrockModelBackend struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockModelBackend creates a raw model backend
func NewBedrockModelBackend(client *bedrockruntime.Client, modelID string) *BedrockModelBackend {
	return &BedrockModelBackend{client: client, modelID: modelID}
}

func (b *BedrockModelBackend) Name() string    { return "bedrock-model" }
func (b *BedrockModelBackend) Stateless() bool { return true }

// StreamGenerate implements ports.Backend
func (b *BedrockModelBackend) StreamGenerate(ctx context.Context, prompt string, _ valueobjects.SessionKey) <-chan ports.Fragment {
	ch, out := newStream(ctx, b.Name())

	go func() {
		defer close(ch)

		resp, err := b.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
			ModelId: aws.String(b.modelID),
			Messages: []types.Message{{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			}},
		})
		if err != nil {
			out.fail(fmt.Errorf("converse stream: %w", err))
			return
		}

		stream := resp.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			delta, ok := event.(*types.ConverseStreamOutputMemberContentBlockDelta)
			if !ok {
				continue
			}
			text, ok := delta.Value.Delta.(*types.ContentBlockDeltaMemberText)
			if !ok {
				continue
			}
			if !out.text(text.Value) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			out.fail(fmt.Errorf("model stream: %w", err))
		}
	}()
	return ch
}

// Generate implements ports.Backend
func (b *BedrockModelBackend) Generate(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error) {
	return ports.Drain(ctx, b.StreamGenerate(ctx, prompt, key))
}
