package rest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carechat/application/commands"
	"carechat/application/commands/bus"
	commandhandlers "carechat/application/commands/handlers"
	"carechat/application/ports"
	"carechat/application/queries"
	querybus "carechat/application/queries/bus"
	queryhandlers "carechat/application/queries/handlers"
	"carechat/application/services"
	"carechat/domain/config"
	"carechat/infrastructure/llm"
	"carechat/infrastructure/messaging/inprocess"
	"carechat/infrastructure/persistence/memory"
	"carechat/interfaces/http/rest/handlers"
	"carechat/pkg/auth"
	pkgerrors "carechat/pkg/errors"
	"carechat/pkg/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-test-secret"

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, ports.ExtractionJob) error { return nil }

type testServer struct {
	handler  http.Handler
	backend  *llm.ScriptedBackend
	feedback *memory.FeedbackRepository
	tokens   *auth.JWTGenerator
}

type serverOptions struct {
	limiter auth.RateLimiter
	metrics *observability.Collector
	ready   func(ctx context.Context) error
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	logger := zap.NewNop()

	conversations := memory.NewConversationRepository()
	messages := memory.NewMessageRepository()
	profiles := memory.NewProfileRepository()
	feedback := memory.NewFeedbackRepository()
	publisher := inprocess.NewLogPublisher(logger)
	backend := llm.NewScriptedBackend("scripted", false)
	domain := config.DefaultDomainConfig()

	registry := services.NewSessionRegistry(conversations, publisher, logger)
	chat := services.NewChatService(
		registry,
		services.NewTranscriptWriter(messages, conversations, logger),
		services.NewRelay(services.ErrorMessage(domain), logger),
		messages, profiles, backend, nopDispatcher{}, publisher,
		observability.NopMetrics{}, domain, 5*time.Second, logger,
	)

	commandBus := bus.NewCommandBus(bus.LoggingMiddleware(logger))
	require.NoError(t, commandBus.Register(commands.CreateConversationCommand{}, commandhandlers.NewCreateConversationHandler(registry, logger)))
	require.NoError(t, commandBus.Register(commands.ResumeConversationCommand{}, commandhandlers.NewResumeConversationHandler(registry)))
	require.NoError(t, commandBus.Register(commands.CloseConversationCommand{}, commandhandlers.NewCloseConversationHandler(registry, logger)))
	require.NoError(t, commandBus.Register(commands.SubmitFeedbackCommand{}, commandhandlers.NewSubmitFeedbackHandler(feedback, publisher, logger)))

	queryBus := querybus.NewQueryBus(logger)
	require.NoError(t, queryBus.Register(queries.ListConversationsQuery{}, queryhandlers.NewListConversationsHandler(conversations, messages)))
	require.NoError(t, queryBus.Register(queries.GetConversationQuery{}, queryhandlers.NewGetConversationHandler(registry, messages)))
	require.NoError(t, queryBus.Register(queries.GetProfileQuery{}, queryhandlers.NewGetProfileHandler(profiles)))

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     testSecret,
		Issuer:        "carechat",
	})
	require.NoError(t, err)
	tokens, err := auth.NewJWTGenerator(testSecret, "carechat", nil, time.Hour)
	require.NoError(t, err)

	router := NewRouter(commandBus, queryBus, chat, nil, validator, opts.limiter, opts.metrics, opts.ready, RouterConfig{
		AllowedOrigins: []string{"*"},
		RateLimit:      1,
		RateWindow:     time.Minute,
	}, logger)

	return &testServer{handler: router.Setup(), backend: backend, feedback: feedback, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createConversation(t *testing.T, token string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/conversations", "", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result commands.ConversationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.ConversationID)
	return result.ConversationID
}

func readFrames(t *testing.T, body string) []handlers.Frame {
	t.Helper()
	var frames []handlers.Frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var f handlers.Frame
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &f))
		frames = append(frames, f)
	}
	return frames
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) pkgerrors.ErrorResponse {
	t.Helper()
	var resp pkgerrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = s.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := newTestServer(t, serverOptions{ready: func(context.Context) error { return errors.New("store down") }})
	rec = failing.do(t, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodGet, "/api/v1/nope", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decodeError(t, rec).Error)
}

func TestTurn_StreamsFrames(t *testing.T) {
	// Arrange
	s := newTestServer(t, serverOptions{})
	id := s.createConversation(t, "")
	s.backend.Enqueue(llm.Script{Chunks: []string{"Hel", "lo", " there"}})

	// Act
	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/turns", `{"message":"hi"}`, "")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Equal(t, []handlers.Frame{{Chunk: "Hel"}, {Chunk: "lo"}, {Chunk: " there"}}, readFrames(t, rec.Body.String()))

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail queries.ConversationDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Len(t, detail.Messages, 2)
	assert.True(t, detail.Messages[0].IsUser)
	assert.Equal(t, "hi", detail.Messages[0].Content)
	assert.Equal(t, "Hello there", detail.Messages[1].Content)
}

func TestTurn_BackendFailureEndsWithErrorFrame(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.createConversation(t, "")
	s.backend.Enqueue(llm.Script{Chunks: []string{"partial"}, Err: errors.New("agent exploded")})

	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/turns", `{"message":"hi"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	frames := readFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "partial", frames[0].Chunk)
	assert.NotEmpty(t, frames[1].Error)
}

func TestTurn_Rejections(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.createConversation(t, "")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"missing message", "/api/v1/conversations/" + id + "/turns", `{}`, http.StatusBadRequest},
		{"blank message", "/api/v1/conversations/" + id + "/turns", `{"message":"   "}`, http.StatusBadRequest},
		{"unknown field", "/api/v1/conversations/" + id + "/turns", `{"message":"hi","extra":1}`, http.StatusBadRequest},
		{"unknown conversation", "/api/v1/conversations/" + uuid.NewString() + "/turns", `{"message":"hi"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body, "")

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeError(t, rec).Error)
		})
	}
	assert.Empty(t, s.backend.Calls())
}

func TestTurn_ClosedConversation(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.createConversation(t, "")

	rec := s.do(t, http.MethodDelete, "/api/v1/conversations/"+id, "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/turns", `{"message":"hi"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifiedUser_ListsOwnConversations(t *testing.T) {
	// Arrange
	s := newTestServer(t, serverOptions{})
	token, err := s.tokens.GenerateToken("alice", "alice@example.com", nil)
	require.NoError(t, err)
	id := s.createConversation(t, token)
	s.createConversation(t, "")

	s.backend.Enqueue(llm.Script{Chunks: []string{"ok"}})
	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/turns", `{"message":"hello"}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	// Act
	rec = s.do(t, http.MethodGet, "/api/v1/conversations", "", token)

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []queries.ConversationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, id, summaries[0].ConversationID)
	assert.Equal(t, "ok", summaries[0].LastMessage)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestVerifiedUser_CannotUseOthersConversation(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	alice, err := s.tokens.GenerateToken("alice", "", nil)
	require.NoError(t, err)
	bob, err := s.tokens.GenerateToken("bob", "", nil)
	require.NoError(t, err)
	id := s.createConversation(t, alice)

	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/turns", `{"message":"hi"}`, bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+id, "", bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCurrentConversation(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	token, err := s.tokens.GenerateToken("carol", "", nil)
	require.NoError(t, err)

	first := s.do(t, http.MethodGet, "/api/v1/conversations/current", "", token)
	require.Equal(t, http.StatusCreated, first.Code)
	second := s.do(t, http.MethodGet, "/api/v1/conversations/current", "", token)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b commands.ConversationResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ConversationID, b.ConversationID)
}

func TestInvalidToken(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodGet, "/api/v1/conversations", "", "not-a-jwt")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFeedback(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/feedback", `{"type":"bug","rating":4,"message":"answers are slow"}`, "")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result commands.FeedbackResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.FeedbackID)
	assert.Len(t, s.feedback.All(), 1)

	rec = s.do(t, http.MethodPost, "/api/v1/feedback", `{"type":"rant","message":"x"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfile_NotFound(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	token, err := s.tokens.GenerateToken("dave", "", nil)
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/v1/profiles/dave", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/profiles/dave", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTranscription_Disabled(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec := s.do(t, http.MethodPost, "/api/v1/transcriptions", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := auth.NewTokenBucketLimiter(1, time.Minute, time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })
	s := newTestServer(t, serverOptions{limiter: limiter})
	id := s.createConversation(t, "")

	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/turns", `{"message":"one"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/conversations/"+id+"/turns", `{"message":"two"}`, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Len(t, s.backend.Calls(), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, serverOptions{metrics: observability.NewCollector("carechat_test")})
	s.do(t, http.MethodGet, "/health", "", "")

	rec := s.do(t, http.MethodGet, "/metrics", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `carechat_test_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestWebSocketTurn(t *testing.T) {
	// Arrange
	s := newTestServer(t, serverOptions{})
	id := s.createConversation(t, "")
	s.backend.Enqueue(llm.Script{Chunks: []string{"a", "b"}})

	srv := httptest.NewServer(s.handler)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Act
	require.NoError(t, conn.WriteJSON(map[string]string{
		"action":         "sendMessage",
		"conversationId": id,
		"message":        "hi",
	}))

	// Assert
	var frames []handlers.Frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f handlers.Frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Done || f.Error != "" {
			break
		}
	}
	assert.Equal(t, []handlers.Frame{
		{ConversationID: id, Chunk: "a"},
		{ConversationID: id, Chunk: "b"},
		{ConversationID: id, Done: true},
	}, frames)

	// Unknown conversations get an error frame and the socket stays open
	require.NoError(t, conn.WriteJSON(map[string]string{"conversationId": uuid.NewString(), "message": "hi"}))
	var f handlers.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.NotEmpty(t, f.Error)
	assert.False(t, f.Done)
}
