package handlers

import (
	"context"
	"testing"
	"time"

	"carechat/application/queries"
	"carechat/application/queries/bus"
	"carechat/application/services"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	"carechat/infrastructure/messaging/inprocess"
	"carechat/infrastructure/persistence/memory"
	pkgerrors "carechat/pkg/errors"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	bus           *bus.QueryBus
	registry      *services.SessionRegistry
	conversations *memory.ConversationRepository
	messages      *memory.MessageRepository
	profiles      *memory.ProfileRepository
	clock         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	f := &fixture{
		bus:           bus.NewQueryBus(logger),
		conversations: memory.NewConversationRepository(),
		messages:      memory.NewMessageRepository(),
		profiles:      memory.NewProfileRepository(),
		clock:         time.Now().UTC(),
	}
	f.registry = services.NewSessionRegistry(f.conversations, inprocess.NewLogPublisher(logger), logger)

	require.NoError(t, f.bus.Register(queries.ListConversationsQuery{}, NewListConversationsHandler(f.conversations, f.messages)))
	require.NoError(t, f.bus.Register(queries.GetConversationQuery{}, NewGetConversationHandler(f.registry, f.messages)))
	require.NoError(t, f.bus.Register(queries.GetProfileQuery{}, NewGetProfileHandler(f.profiles)))
	return f
}

// say appends a user message and its reply, advancing the conversation
func (f *fixture) say(t *testing.T, c *entities.Conversation, owner valueobjects.Identity, text, reply string) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []struct {
		text   string
		origin valueobjects.Origin
	}{{text, valueobjects.OriginUser}, {reply, valueobjects.OriginAssistant}} {
		f.clock = f.clock.Add(time.Second)
		content := valueobjects.NewAssistantContent(m.text)
		require.NoError(t, f.messages.Append(ctx, entities.NewMessage(c.ID(), content, m.origin, owner, f.clock)))
		require.NoError(t, f.conversations.Touch(ctx, c.ID(), f.clock))
	}
}

func TestListConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := valueobjects.NewIdentity("alice")
	older, err := f.registry.Create(ctx, alice)
	require.NoError(t, err)
	newer, err := f.registry.Create(ctx, alice)
	require.NoError(t, err)
	_, err = f.registry.Create(ctx, valueobjects.NewIdentity("bob"))
	require.NoError(t, err)
	f.say(t, older, alice, "I want to sleep better", "Let's talk about routines.")
	f.say(t, newer, alice, "Hi", "Hello!")

	result, err := f.bus.Ask(ctx, queries.ListConversationsQuery{UserIdentifier: "alice"})

	require.NoError(t, err)
	summaries := result.([]queries.ConversationSummary)
	require.Len(t, summaries, 2)
	assert.Equal(t, newer.ID().String(), summaries[0].ConversationID)
	assert.Equal(t, "Hello!", summaries[0].LastMessage)
	assert.Equal(t, older.ID().String(), summaries[1].ConversationID)
	assert.Equal(t, "Let's talk about routines.", summaries[1].LastMessage)

	got := summaries[1].Messages
	want := []queries.MessageView{
		{Content: "I want to sleep better", IsUser: true, UserIdentifier: "alice"},
		{Content: "Let's talk about routines.", IsUser: false},
	}
	ignoreGenerated := func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".ID" || name == ".Timestamp"
	}
	assert.Empty(t, cmp.Diff(want, got, cmp.FilterPath(ignoreGenerated, cmp.Ignore())))
}

func TestListConversations_GuestAndEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.registry.Create(ctx, valueobjects.Guest())
	require.NoError(t, err)

	guest, err := f.bus.Ask(ctx, queries.ListConversationsQuery{})
	require.NoError(t, err)
	nobody, err := f.bus.Ask(ctx, queries.ListConversationsQuery{UserIdentifier: "nobody"})
	require.NoError(t, err)

	assert.Empty(t, guest.([]queries.ConversationSummary))
	assert.NotNil(t, nobody.([]queries.ConversationSummary))
	assert.Empty(t, nobody.([]queries.ConversationSummary))
}

func TestGetConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := valueobjects.NewIdentity("alice")
	c, err := f.registry.Create(ctx, alice)
	require.NoError(t, err)
	f.say(t, c, alice, "Hi", "Hello!")

	result, err := f.bus.Ask(ctx, queries.GetConversationQuery{ConversationID: c.ID().String(), Verified: alice})

	require.NoError(t, err)
	detail := result.(*queries.ConversationDetail)
	assert.True(t, detail.Active)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "Hi", detail.Messages[0].Content)
	assert.True(t, detail.Messages[0].IsUser)
	assert.Equal(t, "Hello!", detail.Messages[1].Content)
}

func TestGetConversation_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.registry.Create(ctx, valueobjects.NewIdentity("alice"))
	require.NoError(t, err)

	_, missing := f.bus.Ask(ctx, queries.GetConversationQuery{})
	_, unknown := f.bus.Ask(ctx, queries.GetConversationQuery{ConversationID: valueobjects.NewConversationID().String()})
	_, forbidden := f.bus.Ask(ctx, queries.GetConversationQuery{ConversationID: c.ID().String(), Verified: valueobjects.NewIdentity("bob")})

	assert.True(t, pkgerrors.IsType(missing, pkgerrors.ErrorTypeMissingInput))
	assert.True(t, pkgerrors.IsUnknownConversation(unknown))
	assert.True(t, pkgerrors.IsForbidden(forbidden))
}

func TestGetProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := valueobjects.NewIdentity("alice")
	profile := entities.NewProfile(alice)
	profile.Merge(entities.Facts{"goals": {"run a 5k"}, "preferences": {"mornings"}}, time.Now())
	require.NoError(t, f.profiles.Save(ctx, profile))

	result, err := f.bus.Ask(ctx, queries.GetProfileQuery{UserIdentifier: "alice"})

	require.NoError(t, err)
	view := result.(*queries.ProfileView)
	assert.Equal(t, "alice", view.UserIdentifier)
	assert.Equal(t, map[string][]string{"goals": {"run a 5k"}, "preferences": {"mornings"}}, view.Categories)
}

func TestGetProfile_NotFound(t *testing.T) {
	tests := []struct {
		name  string
		query queries.GetProfileQuery
	}{
		{name: "guest", query: queries.GetProfileQuery{UserIdentifier: "guest"}},
		{name: "no profile yet", query: queries.GetProfileQuery{UserIdentifier: "carol"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.bus.Ask(context.Background(), tt.query)

			assert.True(t, pkgerrors.IsNotFound(err), "got %v", err)
		})
	}
}

func TestQueryBus_UnregisteredQuery(t *testing.T) {
	b := bus.NewQueryBus(zap.NewNop())

	_, err := b.Ask(context.Background(), queries.GetProfileQuery{UserIdentifier: "alice"})

	assert.ErrorIs(t, err, bus.ErrHandlerNotFound)
}
