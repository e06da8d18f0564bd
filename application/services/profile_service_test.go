package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	"carechat/domain/events"
	"carechat/infrastructure/cache"
	"carechat/infrastructure/llm"
	"carechat/infrastructure/persistence/memory"
	pkgerrors "carechat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(owner, user, reply string) ports.ExtractionJob {
	return ports.ExtractionJob{
		Owner:          owner,
		ConversationID: valueobjects.NewConversationID().String(),
		UserMessage:    user,
		AssistantReply: reply,
		RequestedAt:    time.Now(),
	}
}

func TestParseExtraction(t *testing.T) {
	tests := []struct {
		name      string
		output    string
		want      entities.Facts
		malformed bool
	}{
		{name: "plain", output: `{"goals":["run a 5k"]}`, want: entities.Facts{"goals": {"run a 5k"}}},
		{name: "fenced", output: "```json\n{\"goals\": [\"rest\"]}\n```", want: entities.Facts{"goals": {"rest"}}},
		{name: "empty object", output: `{}`, want: entities.Facts{}},
		{name: "prose", output: "I could not find anything.", malformed: true},
		{name: "wrong shape", output: `{"goals":"run"}`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExtraction(tt.output)

			if tt.malformed {
				assert.True(t, pkgerrors.IsMalformedExtraction(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfileService_RunMergesFacts(t *testing.T) {
	ctx := context.Background()
	backend := llm.NewScriptedBackend("scripted", true)
	backend.Enqueue(llm.Script{Chunks: []string{`{"Goals": ["sleep better", " sleep better "], `, `"support needs": ["evening check-ins"]}`}})
	profiles := memory.NewProfileRepository()
	mem := cache.NewInMemoryCache(0)
	alice := valueobjects.NewIdentity("alice")
	require.NoError(t, mem.Set(ctx, ProfileCacheKey(alice), []byte("stale"), time.Minute))
	publisher := &recordingPublisher{}
	svc := newProfileService(backend, profiles, mem, publisher, time.Second)

	err := svc.Run(ctx, job("alice", "I can't sleep", "Try a routine"))

	require.NoError(t, err)
	p, err := profiles.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"sleep better"}, p.FactsIn("goals"))
	assert.Equal(t, []string{"evening check-ins"}, p.FactsIn("support_needs"))
	_, err = mem.Get(ctx, ProfileCacheKey(alice))
	assert.ErrorIs(t, err, ports.ErrCacheMiss)
	assert.Contains(t, publisher.types(), events.TypeProfileMerged)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "User: I can't sleep")
	assert.Equal(t, "alice:profile", calls[0].SessionKey.String())
}

func TestProfileService_MalformedOutputLeavesProfileUnchanged(t *testing.T) {
	ctx := context.Background()
	backend := llm.NewScriptedBackend("scripted", true)
	backend.Enqueue(llm.Script{Chunks: []string{"Sorry, I can't help with that."}})
	profiles := memory.NewProfileRepository()
	alice := valueobjects.NewIdentity("alice")
	existing := entities.NewProfile(alice)
	existing.Merge(entities.Facts{"goals": {"run"}}, time.Now())
	require.NoError(t, profiles.Save(ctx, existing))
	svc := newProfileService(backend, profiles, nil, &recordingPublisher{}, time.Second)

	err := svc.Run(ctx, job("alice", "hi", "hello"))

	require.NoError(t, err)
	p, err := profiles.Get(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, entities.Facts{"goals": {"run"}}, p.Facts())
	assert.Equal(t, existing.Version(), p.Version())
}

func TestProfileService_TimeoutIsNoop(t *testing.T) {
	ctx := context.Background()
	backend := llm.NewScriptedBackend("scripted", true)
	backend.Enqueue(llm.Script{Hang: true})
	profiles := memory.NewProfileRepository()
	svc := newProfileService(backend, profiles, nil, &recordingPublisher{}, 20*time.Millisecond)

	err := svc.Run(ctx, job("alice", "hi", "hello"))

	require.NoError(t, err)
	_, err = profiles.Get(ctx, valueobjects.NewIdentity("alice"))
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestProfileService_GuestNeverWrites(t *testing.T) {
	ctx := context.Background()
	backend := llm.NewScriptedBackend("scripted", true)
	profiles := memory.NewProfileRepository()
	svc := newProfileService(backend, profiles, nil, &recordingPublisher{}, time.Second)

	require.NoError(t, svc.Run(ctx, job("", "hi", "hello")))
	require.NoError(t, svc.Run(ctx, job("Guest", "hi", "hello")))
	added, err := svc.Merge(ctx, valueobjects.Guest(), entities.Facts{"goals": {"x"}})

	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Empty(t, backend.Calls())
	_, err = profiles.Get(ctx, valueobjects.Guest())
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestProfileService_ConcurrentMergesKeepEveryFact(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileRepository()
	svc := newProfileService(llm.NewScriptedBackend("scripted", true), profiles, nil, &recordingPublisher{}, time.Second)
	alice := valueobjects.NewIdentity("alice")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Merge(ctx, alice, entities.Facts{"goals": {fmt.Sprintf("goal %d", i)}})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := profiles.Get(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, p.FactsIn("goals"), 10)
	assert.Equal(t, 10, p.Version())
}

func TestProfileService_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileRepository()
	svc := newProfileService(llm.NewScriptedBackend("scripted", true), profiles, nil, &recordingPublisher{}, time.Second)
	alice := valueobjects.NewIdentity("alice")
	facts := entities.Facts{"goals": {"run"}}

	first, err := svc.Merge(ctx, alice, facts)
	require.NoError(t, err)
	second, err := svc.Merge(ctx, alice, facts)
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Zero(t, second)
}
