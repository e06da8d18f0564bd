package events

import (
	"time"

	"carechat/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Event type names, also used as EventBridge detail types
const (
	TypeConversationStarted = "conversation.started"
	TypeConversationClosed  = "conversation.closed"
	TypeTurnCompleted       = "turn.completed"
	TypeTurnFailed          = "turn.failed"
	TypeProfileMerged       = "profile.merged"
	TypeFeedbackSubmitted   = "feedback.submitted"
)

// ConversationStarted is raised when a new conversation is created
type ConversationStarted struct {
	BaseEvent
	ConversationID valueobjects.ConversationID `json:"conversation_id"`
	Owner          string                      `json:"owner,omitempty"`
	SessionKey     string                      `json:"session_key"`
}

// NewConversationStarted creates a ConversationStarted event
func NewConversationStarted(id valueobjects.ConversationID, owner valueobjects.Identity, key valueobjects.SessionKey, timestamp time.Time) ConversationStarted {
	return ConversationStarted{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   TypeConversationStarted,
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: id,
		Owner:          owner.String(),
		SessionKey:     key.String(),
	}
}

// ConversationClosed is raised when a conversation is deactivated
type ConversationClosed struct {
	BaseEvent
	ConversationID valueobjects.ConversationID `json:"conversation_id"`
}

// NewConversationClosed creates a ConversationClosed event
func NewConversationClosed(id valueobjects.ConversationID, timestamp time.Time) ConversationClosed {
	return ConversationClosed{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   TypeConversationClosed,
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: id,
	}
}

// TurnCompleted is raised after the assistant message of a turn is persisted.
// It carries everything the profile extractor needs.
type TurnCompleted struct {
	BaseEvent
	ConversationID valueobjects.ConversationID `json:"conversation_id"`
	Owner          string                      `json:"owner,omitempty"`
	UserMessage    string                      `json:"user_message"`
	AssistantReply string                      `json:"assistant_reply"`
	Backend        string                      `json:"backend"`
	ChunkCount     int                         `json:"chunk_count"`
}

// NewTurnCompleted creates a TurnCompleted event
func NewTurnCompleted(id valueobjects.ConversationID, owner valueobjects.Identity, userMessage, reply, backend string, chunks int, timestamp time.Time) TurnCompleted {
	return TurnCompleted{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   TypeTurnCompleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: id,
		Owner:          owner.String(),
		UserMessage:    userMessage,
		AssistantReply: reply,
		Backend:        backend,
		ChunkCount:     chunks,
	}
}

// TurnFailed is raised when a turn ends in a terminal error
type TurnFailed struct {
	BaseEvent
	ConversationID valueobjects.ConversationID `json:"conversation_id"`
	Backend        string                      `json:"backend"`
	Reason         string                      `json:"reason"`
	ChunksSent     int                         `json:"chunks_sent"`
}

// NewTurnFailed creates a TurnFailed event
func NewTurnFailed(id valueobjects.ConversationID, backend, reason string, chunksSent int, timestamp time.Time) TurnFailed {
	return TurnFailed{
		BaseEvent: BaseEvent{
			AggregateID: id.String(),
			EventType:   TypeTurnFailed,
			Timestamp:   timestamp,
			Version:     1,
		},
		ConversationID: id,
		Backend:        backend,
		Reason:         reason,
		ChunksSent:     chunksSent,
	}
}

// ProfileMerged is raised when extracted facts changed a profile
type ProfileMerged struct {
	BaseEvent
	Owner      string   `json:"owner"`
	Categories []string `json:"categories"`
	Added      int      `json:"added"`
}

// NewProfileMerged creates a ProfileMerged event
func NewProfileMerged(owner valueobjects.Identity, categories []string, added int, timestamp time.Time) ProfileMerged {
	return ProfileMerged{
		BaseEvent: BaseEvent{
			AggregateID: owner.String(),
			EventType:   TypeProfileMerged,
			Timestamp:   timestamp,
			Version:     1,
		},
		Owner:      owner.String(),
		Categories: categories,
		Added:      added,
	}
}

// FeedbackSubmitted is raised when a user leaves feedback
type FeedbackSubmitted struct {
	BaseEvent
	FeedbackID string `json:"feedback_id"`
	Kind       string `json:"kind"`
	Rating     int    `json:"rating,omitempty"`
}

// NewFeedbackSubmitted creates a FeedbackSubmitted event
func NewFeedbackSubmitted(feedbackID, kind string, rating int, timestamp time.Time) FeedbackSubmitted {
	return FeedbackSubmitted{
		BaseEvent: BaseEvent{
			AggregateID: feedbackID,
			EventType:   TypeFeedbackSubmitted,
			Timestamp:   timestamp,
			Version:     1,
		},
		FeedbackID: feedbackID,
		Kind:       kind,
		Rating:     rating,
	}
}
