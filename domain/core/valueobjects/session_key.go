package valueobjects

// SharedSessionKey is the backend session key every guest shares
const SharedSessionKey = "temp-session"

// SessionKey is the backend-side conversational state key. It is a pure
// function of the owning identity so one user always resumes one session.
type SessionKey struct {
	value string
}

// DeriveSessionKey replaces every rune outside [A-Za-z0-9._:-] with '-'.
// Guests map to SharedSessionKey.
func DeriveSessionKey(owner Identity) SessionKey {
	if owner.IsGuest() {
		return SessionKey{value: SharedSessionKey}
	}

	raw := owner.String()
	out := make([]byte, 0, len(raw))
	for _, r := range raw {
		if isSessionKeyRune(r) {
			out = append(out, byte(r))
		} else {
			out = append(out, '-')
		}
	}
	return SessionKey{value: string(out)}
}

// SessionKeyFromString rebuilds a stored session key without re-deriving it
func SessionKeyFromString(s string) SessionKey {
	return SessionKey{value: s}
}

func isSessionKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == ':', r == '-':
		return true
	}
	return false
}

// String returns the key
func (k SessionKey) String() string {
	return k.value
}

// IsShared reports whether this is the guest session key
func (k SessionKey) IsShared() bool {
	return k.value == SharedSessionKey
}
