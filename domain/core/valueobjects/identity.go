package valueobjects

import "strings"

// GuestIdentifier is the marker used for callers without a user identifier
const GuestIdentifier = "guest"

// Identity is the resolved owner of a conversation or profile.
// The zero value is the guest identity.
type Identity struct {
	value string
}

// NewIdentity normalizes a raw user identifier. Empty input and the guest
// marker (any case) both resolve to the guest identity.
func NewIdentity(raw string) Identity {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, GuestIdentifier) {
		return Identity{}
	}
	return Identity{value: raw}
}

// Guest returns the guest identity
func Guest() Identity {
	return Identity{}
}

// IsGuest reports whether this is the guest identity
func (i Identity) IsGuest() bool {
	return i.value == ""
}

// String returns the identifier, or the empty string for guests
func (i Identity) String() string {
	return i.value
}

// Display returns the identifier, or the guest marker for guests
func (i Identity) Display() string {
	if i.IsGuest() {
		return GuestIdentifier
	}
	return i.value
}

// Equals checks if two identities are equal
func (i Identity) Equals(other Identity) bool {
	return i.value == other.value
}
