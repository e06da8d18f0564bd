package valueobjects

import "fmt"

// Origin tells who authored a message
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

// ParseOrigin validates a stored origin value
func ParseOrigin(s string) (Origin, error) {
	switch Origin(s) {
	case OriginUser, OriginAssistant:
		return Origin(s), nil
	}
	return "", fmt.Errorf("invalid message origin: %q", s)
}

// IsUser reports whether the message came from the user
func (o Origin) IsUser() bool {
	return o == OriginUser
}

// String returns the origin name
func (o Origin) String() string {
	return string(o)
}
