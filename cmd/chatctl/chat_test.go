package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"carechat/application/ports"
	"carechat/application/services"
	"carechat/domain/config"
	"carechat/domain/core/valueobjects"
	"carechat/infrastructure/llm"
	"carechat/infrastructure/messaging/inprocess"
	"carechat/infrastructure/persistence/memory"
	"carechat/pkg/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, ports.ExtractionJob) error { return nil }

func TestChatLoop(t *testing.T) {
	// Arrange
	logger := zap.NewNop()
	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	publisher := inprocess.NewLogPublisher(logger)
	domain := config.DefaultDomainConfig()
	registry := services.NewSessionRegistry(conversations, publisher, logger)
	backend := llm.NewScriptedBackend("scripted", false)
	chat := services.NewChatService(
		registry,
		services.NewTranscriptWriter(messages, conversations, logger),
		services.NewRelay(services.ErrorMessage(domain), logger),
		messages, memory.NewProfileRepository(), backend, nopDispatcher{}, publisher,
		observability.NopMetrics{}, domain, 5*time.Second, logger,
	)
	ctx := context.Background()
	conversation, err := registry.Create(ctx, valueobjects.Guest())
	require.NoError(t, err)
	backend.Enqueue(llm.Script{Chunks: []string{"Hello", " there"}})
	backend.Enqueue(llm.Script{Chunks: []string{"Bye"}})

	in := strings.NewReader("hi\n\n   \nbye\n")
	var out, errOut bytes.Buffer

	// Act
	err = chatLoop(ctx, chat, conversation.ID().String(), valueobjects.Guest(), in, &out, &errOut)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Hello there\nBye\n", out.String())
	assert.Len(t, backend.Calls(), 2)
	assert.NotContains(t, errOut.String(), "[rejected]")
}

func TestChatLoop_UnknownConversationIsReported(t *testing.T) {
	logger := zap.NewNop()
	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	publisher := inprocess.NewLogPublisher(logger)
	domain := config.DefaultDomainConfig()
	chat := services.NewChatService(
		services.NewSessionRegistry(conversations, publisher, logger),
		services.NewTranscriptWriter(messages, conversations, logger),
		services.NewRelay(services.ErrorMessage(domain), logger),
		messages, memory.NewProfileRepository(), llm.NewScriptedBackend("scripted", false), nopDispatcher{}, publisher,
		observability.NopMetrics{}, domain, 5*time.Second, logger,
	)
	var out, errOut bytes.Buffer

	err := chatLoop(context.Background(), chat, "00000000-0000-4000-8000-000000000000", valueobjects.Guest(), strings.NewReader("hi\n"), &out, &errOut)

	require.NoError(t, err)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "[rejected]")
}
