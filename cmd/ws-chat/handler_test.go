package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"carechat/application/ports"
	"carechat/application/services"
	"carechat/domain/config"
	"carechat/domain/core/valueobjects"
	"carechat/infrastructure/llm"
	"carechat/infrastructure/messaging/inprocess"
	"carechat/infrastructure/persistence/dynamodb"
	"carechat/infrastructure/persistence/memory"
	"carechat/interfaces/http/rest/handlers"
	"carechat/pkg/auth"
	"carechat/pkg/observability"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "ws-test-secret"

type fakeConnections struct {
	mu    sync.Mutex
	conns map[string]*dynamodb.Connection
}

func (f *fakeConnections) Register(ctx context.Context, connectionID, identity string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[connectionID] = &dynamodb.Connection{ConnectionID: connectionID, Identity: identity}
	return nil
}

func (f *fakeConnections) Lookup(ctx context.Context, connectionID string) (*dynamodb.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[connectionID], nil
}

func (f *fakeConnections) Unregister(ctx context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conns, connectionID)
	return nil
}

// fakePoster records frames; goneAfter > 0 fails every post after that many
type fakePoster struct {
	mu        sync.Mutex
	frames    []handlers.Frame
	goneAfter int
}

func (p *fakePoster) PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.goneAfter > 0 && len(p.frames) >= p.goneAfter {
		return nil, &apigwtypes.GoneException{Message: aws.String("gone")}
	}
	var f handlers.Frame
	if err := json.Unmarshal(params.Data, &f); err != nil {
		return nil, err
	}
	p.frames = append(p.frames, f)
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func (p *fakePoster) Frames() []handlers.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]handlers.Frame(nil), p.frames...)
}

type fixture struct {
	handler     *handler
	connections *fakeConnections
	poster      *fakePoster
	backend     *llm.ScriptedBackend
	registry    *services.SessionRegistry
	tokens      *auth.JWTGenerator
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, ports.ExtractionJob) error { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	publisher := inprocess.NewLogPublisher(logger)
	domain := config.DefaultDomainConfig()

	f := &fixture{
		connections: &fakeConnections{conns: make(map[string]*dynamodb.Connection)},
		poster:      &fakePoster{},
		backend:     llm.NewScriptedBackend("scripted", false),
		registry:    services.NewSessionRegistry(conversations, publisher, logger),
	}
	chat := services.NewChatService(
		f.registry,
		services.NewTranscriptWriter(messages, conversations, logger),
		services.NewRelay(services.ErrorMessage(domain), logger),
		messages, memory.NewProfileRepository(), f.backend, nopDispatcher{}, publisher,
		observability.NopMetrics{}, domain, 5*time.Second, logger,
	)

	validator, err := auth.NewJWTValidator(auth.JWTConfig{SigningMethod: "HS256", SecretKey: secret})
	require.NoError(t, err)
	f.tokens, err = auth.NewJWTGenerator(secret, "", nil, time.Hour)
	require.NoError(t, err)

	f.handler = &handler{
		chat:        chat,
		validator:   validator,
		connections: f.connections,
		newPoster:   func(string, string) poster { return f.poster },
		logger:      logger,
		now:         time.Now,
	}
	return f
}

func request(route, connectionID, body string, query map[string]string) events.APIGatewayWebsocketProxyRequest {
	return events.APIGatewayWebsocketProxyRequest{
		Body:                  body,
		QueryStringParameters: query,
		RequestContext: events.APIGatewayWebsocketProxyRequestContext{
			RouteKey:     route,
			ConnectionID: connectionID,
			DomainName:   "example.execute-api.ca-central-1.amazonaws.com",
			Stage:        "prod",
		},
	}
}

func TestConnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token, err := f.tokens.GenerateToken("alice", "", nil)
	require.NoError(t, err)

	resp, err := f.handler.Handle(ctx, request("$connect", "c1", "", map[string]string{"token": token}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", f.connections.conns["c1"].Identity)

	resp, err = f.handler.Handle(ctx, request("$connect", "c2", "", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, f.connections.conns["c2"].Identity)

	resp, err = f.handler.Handle(ctx, request("$connect", "c3", "", map[string]string{"token": "bogus"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotContains(t, f.connections.conns, "c3")

	_, err = f.handler.Handle(ctx, request("$disconnect", "c1", "", nil))
	require.NoError(t, err)
	assert.NotContains(t, f.connections.conns, "c1")
}

func TestSendMessage_PostsFramesAndDone(t *testing.T) {
	// Arrange
	f := newFixture(t)
	ctx := context.Background()
	conversation, err := f.registry.Create(ctx, valueobjects.Guest())
	require.NoError(t, err)
	id := conversation.ID().String()
	f.backend.Enqueue(llm.Script{Chunks: []string{"one", "two"}})
	_, err = f.handler.Handle(ctx, request("$connect", "c1", "", nil))
	require.NoError(t, err)

	// Act
	body := `{"action":"sendMessage","conversationId":"` + id + `","message":"hi"}`
	resp, err := f.handler.Handle(ctx, request("sendMessage", "c1", body, nil))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []handlers.Frame{
		{ConversationID: id, Chunk: "one"},
		{ConversationID: id, Chunk: "two"},
		{ConversationID: id, Done: true},
	}, f.poster.Frames())
}

func TestSendMessage_VerifiedConnectionMustOwnConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation, err := f.registry.Create(ctx, valueobjects.NewIdentity("alice"))
	require.NoError(t, err)
	token, err := f.tokens.GenerateToken("bob", "", nil)
	require.NoError(t, err)
	_, err = f.handler.Handle(ctx, request("$connect", "c1", "", map[string]string{"token": token}))
	require.NoError(t, err)

	body := `{"conversationId":"` + conversation.ID().String() + `","message":"hi"}`
	_, err = f.handler.Handle(ctx, request("sendMessage", "c1", body, nil))

	require.NoError(t, err)
	frames := f.poster.Frames()
	require.Len(t, frames, 1)
	assert.NotEmpty(t, frames[0].Error)
	assert.Empty(t, f.backend.Calls())
}

func TestSendMessage_BadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, request("sendMessage", "c1", "not json", nil))
	require.NoError(t, err)
	_, err = f.handler.Handle(ctx, request("sendMessage", "c1", `{"action":"dance"}`, nil))
	require.NoError(t, err)

	frames := f.poster.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "invalid message body", frames[0].Error)
	assert.Equal(t, "unknown action dance", frames[1].Error)
}

func TestSendMessage_GoneConnectionStopsTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation, err := f.registry.Create(ctx, valueobjects.Guest())
	require.NoError(t, err)
	f.backend.Enqueue(llm.Script{Chunks: []string{"a", "b", "c", "d"}})
	f.poster.goneAfter = 1
	_, err = f.handler.Handle(ctx, request("$connect", "c1", "", nil))
	require.NoError(t, err)

	body := `{"conversationId":"` + conversation.ID().String() + `","message":"hi"}`
	_, err = f.handler.Handle(ctx, request("sendMessage", "c1", body, nil))

	require.NoError(t, err)
	assert.Len(t, f.poster.Frames(), 1)
	assert.NotContains(t, f.connections.conns, "c1")
}
