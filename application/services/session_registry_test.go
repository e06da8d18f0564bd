package services

import (
	"context"
	"testing"

	"carechat/domain/core/valueobjects"
	"carechat/domain/events"
	"carechat/infrastructure/persistence/memory"
	pkgerrors "carechat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionRegistry_ResolveOrCreate(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	registry := NewSessionRegistry(memory.NewConversationRepository(), publisher, zap.NewNop())
	alice := valueobjects.NewIdentity("alice")

	first, created, err := registry.ResolveOrCreate(ctx, alice)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := registry.ResolveOrCreate(ctx, alice)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, again.ID().Equals(first.ID()))

	require.NoError(t, registry.Close(ctx, again))
	fresh, created, err := registry.ResolveOrCreate(ctx, alice)
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, fresh.ID().Equals(first.ID()))

	assert.Equal(t, []string{
		events.TypeConversationStarted,
		events.TypeConversationClosed,
		events.TypeConversationStarted,
	}, publisher.types())
}

func TestSessionRegistry_GuestsAlwaysGetNewConversations(t *testing.T) {
	ctx := context.Background()
	registry := NewSessionRegistry(memory.NewConversationRepository(), &recordingPublisher{}, zap.NewNop())

	a, _, err := registry.ResolveOrCreate(ctx, valueobjects.Guest())
	require.NoError(t, err)
	b, _, err := registry.ResolveOrCreate(ctx, valueobjects.Guest())
	require.NoError(t, err)

	assert.False(t, a.ID().Equals(b.ID()))
	assert.Equal(t, a.SessionKey(), b.SessionKey())
}

func TestSessionRegistry_Resolve(t *testing.T) {
	ctx := context.Background()
	registry := NewSessionRegistry(memory.NewConversationRepository(), &recordingPublisher{}, zap.NewNop())
	conv, err := registry.Create(ctx, valueobjects.NewIdentity("alice"))
	require.NoError(t, err)

	got, err := registry.Resolve(ctx, conv.ID().String())
	require.NoError(t, err)
	assert.True(t, got.ID().Equals(conv.ID()))

	_, err = registry.Resolve(ctx, "")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeMissingInput))

	_, err = registry.Resolve(ctx, valueobjects.NewConversationID().String())
	assert.True(t, pkgerrors.IsUnknownConversation(err))
}
