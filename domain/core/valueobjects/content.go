package valueobjects

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"carechat/domain/config"
	pkgerrors "carechat/pkg/errors"
)

// MessageContent is a value object for message text
type MessageContent struct {
	text string
}

// NewUserContent validates text typed or spoken by a user
func NewUserContent(text string, cfg *config.DomainConfig) (MessageContent, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	if strings.TrimSpace(text) == "" {
		return MessageContent{}, pkgerrors.NewMissingInputError("message")
	}

	if utf8.RuneCountInString(text) > cfg.MaxMessageLength {
		return MessageContent{}, pkgerrors.NewValidationError(
			fmt.Sprintf("message exceeds maximum length of %d characters", cfg.MaxMessageLength))
	}

	return MessageContent{text: text}, nil
}

// NewAssistantContent wraps generated text verbatim. An empty answer is a
// valid answer.
func NewAssistantContent(text string) MessageContent {
	return MessageContent{text: text}
}

// String returns the text
func (c MessageContent) String() string {
	return c.text
}

// IsEmpty checks if the content is empty
func (c MessageContent) IsEmpty() bool {
	return c.text == ""
}

// Preview returns at most n runes of the text
func (c MessageContent) Preview(n int) string {
	if utf8.RuneCountInString(c.text) <= n {
		return c.text
	}
	runes := []rune(c.text)
	return string(runes[:n]) + "..."
}
