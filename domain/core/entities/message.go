package entities

import (
	"time"

	"carechat/domain/core/valueobjects"

	"github.com/google/uuid"
)

// Message is one append-only entry of a conversation transcript
type Message struct {
	id             string
	conversationID valueobjects.ConversationID
	content        valueobjects.MessageContent
	origin         valueobjects.Origin
	author         valueobjects.Identity
	timestamp      time.Time
}

// NewMessage creates a message. Assistant messages carry no author.
func NewMessage(
	conversationID valueobjects.ConversationID,
	content valueobjects.MessageContent,
	origin valueobjects.Origin,
	author valueobjects.Identity,
	timestamp time.Time,
) *Message {
	if origin == valueobjects.OriginAssistant {
		author = valueobjects.Guest()
	}
	return &Message{
		id:             uuid.New().String(),
		conversationID: conversationID,
		content:        content,
		origin:         origin,
		author:         author,
		timestamp:      timestamp,
	}
}

// ReconstructMessage rebuilds a message from storage
func ReconstructMessage(
	id string,
	conversationID valueobjects.ConversationID,
	content valueobjects.MessageContent,
	origin valueobjects.Origin,
	author valueobjects.Identity,
	timestamp time.Time,
) *Message {
	return &Message{
		id:             id,
		conversationID: conversationID,
		content:        content,
		origin:         origin,
		author:         author,
		timestamp:      timestamp,
	}
}

func (m *Message) ID() string                                  { return m.id }
func (m *Message) ConversationID() valueobjects.ConversationID { return m.conversationID }
func (m *Message) Content() valueobjects.MessageContent        { return m.content }
func (m *Message) Origin() valueobjects.Origin                 { return m.origin }
func (m *Message) Author() valueobjects.Identity               { return m.author }
func (m *Message) Timestamp() time.Time                        { return m.timestamp }
