package entities

import (
	"time"

	"carechat/domain/core/valueobjects"
	"carechat/domain/events"
)

// Conversation groups the messages of one chat between an owner and a backend.
// The backend session key is derived from the owner and never changes.
type Conversation struct {
	id         valueobjects.ConversationID
	owner      valueobjects.Identity
	sessionKey valueobjects.SessionKey
	createdAt  time.Time
	updatedAt  time.Time
	active     bool
	version    int

	events []events.DomainEvent
}

// NewConversation starts a conversation for the given owner
func NewConversation(id valueobjects.ConversationID, owner valueobjects.Identity, now time.Time) *Conversation {
	now = now.UTC().Truncate(time.Microsecond)
	c := &Conversation{
		id:         id,
		owner:      owner,
		sessionKey: valueobjects.DeriveSessionKey(owner),
		createdAt:  now,
		updatedAt:  now,
		active:     true,
		version:    1,
	}
	c.addEvent(events.NewConversationStarted(c.id, owner, c.sessionKey, now))
	return c
}

// ReconstructConversation rebuilds a conversation from storage without raising events
func ReconstructConversation(
	id valueobjects.ConversationID,
	owner valueobjects.Identity,
	sessionKey valueobjects.SessionKey,
	createdAt, updatedAt time.Time,
	active bool,
	version int,
) *Conversation {
	return &Conversation{
		id:         id,
		owner:      owner,
		sessionKey: sessionKey,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
		active:     active,
		version:    version,
	}
}

func (c *Conversation) ID() valueobjects.ConversationID     { return c.id }
func (c *Conversation) Owner() valueobjects.Identity        { return c.owner }
func (c *Conversation) SessionKey() valueobjects.SessionKey { return c.sessionKey }
func (c *Conversation) CreatedAt() time.Time                { return c.createdAt }
func (c *Conversation) UpdatedAt() time.Time                { return c.updatedAt }
func (c *Conversation) IsActive() bool                      { return c.active }
func (c *Conversation) Version() int                        { return c.version }

// IsOwnedBy reports whether the identity may read or write this conversation.
// Guest conversations are open to any caller.
func (c *Conversation) IsOwnedBy(identity valueobjects.Identity) bool {
	if c.owner.IsGuest() {
		return true
	}
	return c.owner.Equals(identity)
}

// Touch moves updatedAt forward. It never moves it backwards.
func (c *Conversation) Touch(at time.Time) {
	if at.After(c.updatedAt) {
		c.updatedAt = at
		c.version++
	}
}

// Close deactivates the conversation
func (c *Conversation) Close(now time.Time) {
	if !c.active {
		return
	}
	c.active = false
	c.Touch(now)
	c.addEvent(events.NewConversationClosed(c.id, now))
}

// NextTimestamp returns a timestamp for a new message that is strictly after
// the last recorded activity, so read order always equals append order.
// Timestamps have microsecond precision.
func (c *Conversation) NextTimestamp(now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(c.updatedAt) {
		return c.updatedAt.Add(time.Microsecond)
	}
	return now
}

// GetUncommittedEvents returns events raised since load
func (c *Conversation) GetUncommittedEvents() []events.DomainEvent {
	return c.events
}

// MarkEventsAsCommitted clears pending events
func (c *Conversation) MarkEventsAsCommitted() {
	c.events = nil
}

func (c *Conversation) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}
