package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSessionKey(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		want  string
	}{
		{"email", "a@b.com", "a-b.com"},
		{"allowed punctuation kept", "user_1:team.x-y", "user_1:team.x-y"},
		{"spaces and symbols", "John Doe/#1", "John-Doe--1"},
		{"non ascii", "zoë", "zo-"},
		{"guest marker", "guest", SharedSessionKey},
		{"guest marker any case", "GUEST", SharedSessionKey},
		{"absent", "", SharedSessionKey},
		{"whitespace only", "   ", SharedSessionKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveSessionKey(NewIdentity(tt.owner))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDeriveSessionKey_Deterministic(t *testing.T) {
	owner := NewIdentity("someone+tag@example.org")

	first := DeriveSessionKey(owner)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveSessionKey(NewIdentity("someone+tag@example.org")))
	}
	assert.False(t, first.IsShared())
}

func TestIdentity(t *testing.T) {
	assert.True(t, NewIdentity("").IsGuest())
	assert.True(t, NewIdentity(" Guest ").IsGuest())
	assert.Equal(t, "guest", Guest().Display())

	id := NewIdentity(" a@b.com ")
	assert.False(t, id.IsGuest())
	assert.Equal(t, "a@b.com", id.String())
	assert.True(t, id.Equals(NewIdentity("a@b.com")))
}
