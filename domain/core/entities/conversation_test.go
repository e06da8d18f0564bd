package entities

import (
	"testing"
	"time"

	"carechat/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
)

func TestNewConversation(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)

	c := NewConversation(valueobjects.NewConversationID(), valueobjects.NewIdentity("a@b.com"), now)

	assert.Equal(t, "a-b.com", c.SessionKey().String())
	assert.True(t, c.IsActive())
	assert.Equal(t, now.Truncate(time.Microsecond), c.CreatedAt())
	assert.Len(t, c.GetUncommittedEvents(), 1)
}

func TestConversation_NextTimestampIsStrictlyIncreasing(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewConversation(valueobjects.NewConversationID(), valueobjects.Guest(), now)

	first := c.NextTimestamp(now)
	c.Touch(first)
	second := c.NextTimestamp(now.Add(-time.Hour))
	c.Touch(second)
	third := c.NextTimestamp(now.Add(time.Second))

	assert.True(t, first.After(now))
	assert.True(t, second.After(first))
	assert.True(t, third.After(second))
}

func TestConversation_Ownership(t *testing.T) {
	now := time.Now()
	owned := NewConversation(valueobjects.NewConversationID(), valueobjects.NewIdentity("a@b.com"), now)
	guest := NewConversation(valueobjects.NewConversationID(), valueobjects.Guest(), now)

	assert.True(t, owned.IsOwnedBy(valueobjects.NewIdentity("a@b.com")))
	assert.False(t, owned.IsOwnedBy(valueobjects.NewIdentity("c@d.com")))
	assert.True(t, guest.IsOwnedBy(valueobjects.NewIdentity("c@d.com")))
}

func TestConversation_Close(t *testing.T) {
	now := time.Now()
	c := NewConversation(valueobjects.NewConversationID(), valueobjects.Guest(), now)
	c.MarkEventsAsCommitted()

	c.Close(now.Add(time.Second))
	c.Close(now.Add(2 * time.Second))

	assert.False(t, c.IsActive())
	assert.Len(t, c.GetUncommittedEvents(), 1)
}
