package services

import (
	"context"
	"errors"
	"time"

	"carechat/application/ports"
	"carechat/domain/config"
	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
	"carechat/domain/events"
	pkgerrors "carechat/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// TurnRequest is one user message addressed to a conversation
type TurnRequest struct {
	ConversationID string
	Message        string

	// UserIdentifier is the identifier the caller claims, if any
	UserIdentifier string

	// Verified is the identity proven by authentication; guest when absent
	Verified valueobjects.Identity
}

// TurnStatus is how a turn ended
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
	TurnAborted   TurnStatus = "aborted"
)

// TurnOutcome describes a finished turn
type TurnOutcome struct {
	Status         TurnStatus
	ConversationID string
	Reply          string
	Chunks         int
	Err            error
}

// ChatService runs turns: it persists the user message, streams the backend
// answer to the caller, persists the assistant message and hands the
// exchange to profile extraction
type ChatService struct {
	registry   *SessionRegistry
	writer     *TranscriptWriter
	relay      *Relay
	messages   ports.MessageRepository
	profiles   ports.ProfileRepository
	backend    ports.Backend
	dispatcher ports.ExtractionDispatcher
	publisher  ports.EventPublisher
	metrics    ports.TurnMetrics
	domain     *config.DomainConfig
	timeout    time.Duration
	logger     *zap.Logger
}

// NewChatService creates a new chat service. profiles may be a cached reader.
func NewChatService(
	registry *SessionRegistry,
	writer *TranscriptWriter,
	relay *Relay,
	messages ports.MessageRepository,
	profiles ports.ProfileRepository,
	backend ports.Backend,
	dispatcher ports.ExtractionDispatcher,
	publisher ports.EventPublisher,
	metrics ports.TurnMetrics,
	domain *config.DomainConfig,
	timeout time.Duration,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		registry:   registry,
		writer:     writer,
		relay:      relay,
		messages:   messages,
		profiles:   profiles,
		backend:    backend,
		dispatcher: dispatcher,
		publisher:  publisher,
		metrics:    metrics,
		domain:     domain,
		timeout:    timeout,
		logger:     logger,
	}
}

// Turn runs one chat turn. Errors returned before any event is sent are client
// or storage errors and nothing has been streamed. Once streaming starts the
// returned error is nil and the outcome tells how the stream ended; the sink
// has received exactly one terminal event unless the caller went away.
func (s *ChatService) Turn(ctx context.Context, req TurnRequest, sink EventSink) (*TurnOutcome, error) {
	start := time.Now()

	if req.ConversationID == "" {
		return nil, pkgerrors.NewMissingInputError("conversationId")
	}
	content, err := valueobjects.NewUserContent(req.Message, s.domain)
	if err != nil {
		return nil, err
	}

	conversation, err := s.registry.ResolveActive(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	identity, err := ResolveTurnIdentity(req.Verified, req.UserIdentifier, conversation)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("carechat/chat").Start(ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversation.ID().String()),
		attribute.String("backend", s.backend.Name()),
	)

	if _, err := s.writer.Append(ctx, conversation, content, valueobjects.OriginUser, identity); err != nil {
		span.RecordError(err)
		return nil, err
	}

	prompt := s.buildPrompt(ctx, conversation, identity, content.String())

	var (
		genCtx context.Context
		cancel context.CancelFunc
	)
	if s.timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		genCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	stream := s.backend.StreamGenerate(genCtx, prompt, conversation.SessionKey())
	result := s.relay.Forward(genCtx, stream, sink)
	cancel()

	outcome := &TurnOutcome{
		ConversationID: conversation.ID().String(),
		Chunks:         result.Chunks,
	}
	if result.Chunks > 0 {
		s.metrics.ObserveFirstChunk(s.backend.Name(), result.FirstChunk)
	}

	// A turn that reached done is complete even if the caller leaves right
	// after; only the relay result decides.
	switch {
	case result.SinkErr != nil || (result.Err != nil && ctx.Err() != nil):
		outcome.Status = TurnAborted
		outcome.Err = firstError(result.SinkErr, ctx.Err(), result.Err)
		span.SetStatus(codes.Error, "caller disconnected")
		s.logger.Info("Turn aborted by caller",
			zap.String("conversationID", outcome.ConversationID),
			zap.Int("chunks", result.Chunks),
			zap.Error(outcome.Err),
		)

	case result.Err != nil:
		outcome.Status = TurnFailed
		outcome.Err = result.Err
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "backend failed")
		fields := []zap.Field{
			zap.String("conversationID", outcome.ConversationID),
			zap.String("backend", s.backend.Name()),
			zap.Int("chunks", result.Chunks),
			zap.Error(result.Err),
		}
		if pkgerrors.IsBackendUnavailable(result.Err) {
			s.logger.Warn("Turn failed", fields...)
		} else {
			// Timeouts and anything the adapters did not classify
			s.logger.Error("Turn failed", fields...)
		}
		s.publish(ctx, events.NewTurnFailed(conversation.ID(), s.backend.Name(), result.Err.Error(), result.Chunks, time.Now().UTC()))

	default:
		outcome.Status = TurnCompleted
		outcome.Reply = result.Text
		s.complete(ctx, conversation, identity, content.String(), result)
	}

	s.metrics.ObserveTurn(s.backend.Name(), string(outcome.Status), time.Since(start), result.Chunks)
	return outcome, nil
}

// complete persists the assistant message and dispatches extraction. The
// caller already has every chunk, so neither step may be cut short by the
// caller leaving now.
func (s *ChatService) complete(ctx context.Context, conversation *entities.Conversation, identity valueobjects.Identity, userMessage string, result RelayResult) {
	detached := context.WithoutCancel(ctx)

	if _, err := s.writer.Append(detached, conversation, valueobjects.NewAssistantContent(result.Text), valueobjects.OriginAssistant, valueobjects.Guest()); err != nil {
		s.logger.Error("Failed to persist assistant message",
			zap.String("conversationID", conversation.ID().String()),
			zap.Error(err),
		)
		return
	}

	now := time.Now().UTC()
	s.publish(detached, events.NewTurnCompleted(conversation.ID(), identity, userMessage, result.Text, s.backend.Name(), result.Chunks, now))

	if identity.IsGuest() {
		return
	}

	job := ports.ExtractionJob{
		Owner:          identity.String(),
		ConversationID: conversation.ID().String(),
		UserMessage:    userMessage,
		AssistantReply: result.Text,
		RequestedAt:    now,
	}
	if err := s.dispatcher.Dispatch(detached, job); err != nil {
		s.logger.Warn("Failed to dispatch profile extraction",
			zap.String("conversationID", conversation.ID().String()),
			zap.Error(err),
		)
	}
}

// ResolveTurnIdentity picks the identity a turn runs as. A verified identity
// must own the conversation. Without one, an owned conversation runs as its
// owner and a guest conversation runs as whoever the caller claims to be.
func ResolveTurnIdentity(verified valueobjects.Identity, claimed string, conversation *entities.Conversation) (valueobjects.Identity, error) {
	if !verified.IsGuest() {
		if !conversation.IsOwnedBy(verified) {
			return valueobjects.Identity{}, pkgerrors.NewForbiddenError("conversation belongs to another user")
		}
		return verified, nil
	}
	if !conversation.Owner().IsGuest() {
		return conversation.Owner(), nil
	}
	return valueobjects.NewIdentity(claimed), nil
}

// ResolveCallerIdentity picks the identity for requests that are not tied to
// a conversation. A verified identity wins, and a claimed identifier that
// disagrees with it is forbidden.
func ResolveCallerIdentity(verified valueobjects.Identity, claimed string) (valueobjects.Identity, error) {
	if verified.IsGuest() {
		return valueobjects.NewIdentity(claimed), nil
	}
	if c := valueobjects.NewIdentity(claimed); !c.IsGuest() && !c.Equals(verified) {
		return valueobjects.Identity{}, pkgerrors.NewForbiddenError("identifier does not match the authenticated user")
	}
	return verified, nil
}

func (s *ChatService) buildPrompt(ctx context.Context, conversation *entities.Conversation, identity valueobjects.Identity, message string) string {
	var profile *entities.Profile
	if !identity.IsGuest() {
		p, err := s.profiles.Get(ctx, identity)
		switch {
		case err == nil:
			profile = p
		case !errors.Is(err, ports.ErrNotFound):
			s.logger.Warn("Profile unavailable, composing without it",
				zap.String("owner", identity.String()),
				zap.Error(err),
			)
		}
	}

	prompt := Compose(identity, message, profile)
	if !s.backend.Stateless() || s.domain.HistoryWindow == 0 {
		return prompt
	}

	// The newest stored message is the one just appended.
	recent, err := s.messages.Recent(ctx, conversation.ID(), s.domain.HistoryWindow+1)
	if err != nil {
		s.logger.Warn("History unavailable", zap.String("conversationID", conversation.ID().String()), zap.Error(err))
		return prompt
	}
	if len(recent) > 0 {
		recent = recent[:len(recent)-1]
	}
	return WithHistory(recent, prompt)
}

func (s *ChatService) publish(ctx context.Context, event events.DomainEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err),
		)
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ErrorMessage renders the terminal error frame text for a failed stream
func ErrorMessage(domain *config.DomainConfig) func(error) string {
	return func(err error) string {
		if domain != nil && domain.FallbackMessage != "" {
			return domain.FallbackMessage
		}
		return err.Error()
	}
}
