package llm

import (
	"context"
	"fmt"

	"carechat/application/ports"
	"carechat/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
	"go.uber.org/zap"
)

// BedrockAgentBackend streams from a hosted Bedrock agent. The agent keeps
// conversation state per session id, so prompts carry no history.
type BedrockAgentBackend struct {
	client  *bedrockagentruntime.Client
	agentID string
	aliasID string
	logger  *zap.Logger
}

// NewBedrockAgentBackend creates an agent backend
func NewBedrockAgentBackend(client *bedrockagentruntime.Client, agentID, aliasID string, logger *zap.Logger) *BedrockAgentBackend {
	return &BedrockAgentBackend{client: client, agentID: agentID, aliasID: aliasID, logger: logger}
}

func (b *BedrockAgentBackend) Name() string    { return "bedrock-agent" }
func (b *BedrockAgentBackend) Stateless() bool { return false }

// StreamGenerate implements ports.Backend
func (b *BedrockAgentBackend) StreamGenerate(ctx context.Context, prompt string, key valueobjects.SessionKey) <-chan ports.Fragment {
	ch, out := newStream(ctx, b.Name())

	go func() {
		defer close(ch)

		resp, err := b.client.InvokeAgent(ctx, &bedrockagentruntime.InvokeAgentInput{
			AgentId:      aws.String(b.agentID),
			AgentAliasId: aws.String(b.aliasID),
			SessionId:    aws.String(key.String()),
			InputText:    aws.String(prompt),
		})
		if err != nil {
			out.fail(fmt.Errorf("invoke agent: %w", err))
			return
		}

		stream := resp.GetStream()
		defer stream.Close()

		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			if !out.text(string(chunk.Value.Bytes)) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			out.fail(fmt.Errorf("agent stream: %w", err))
		}
	}()
	return ch
}

// Generate implements ports.Backend
func (b *BedrockAgentBackend) Generate(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error) {
	return ports.Drain(ctx, b.StreamGenerate(ctx, prompt, key))
}
