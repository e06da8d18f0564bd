package services

import (
	"strings"
	"unicode"

	"carechat/domain/core/entities"
	"carechat/domain/core/valueobjects"
)

const profileHeader = "Known facts about the user:"

// Compose builds the prompt for a turn. Non-guests with a stored profile get a
// prefix with one "Category: fact1, fact2" line per category, categories and
// facts sorted. Otherwise the message is returned unchanged.
func Compose(owner valueobjects.Identity, message string, profile *entities.Profile) string {
	if owner.IsGuest() || profile == nil || profile.IsEmpty() {
		return message
	}

	var sb strings.Builder
	sb.WriteString(profileHeader)
	sb.WriteByte('\n')
	for _, category := range profile.Categories() {
		sb.WriteString(CategoryLabel(category))
		sb.WriteString(": ")
		sb.WriteString(strings.Join(profile.FactsIn(category), ", "))
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(message)
	return sb.String()
}

// WithHistory prepends earlier turns for backends that keep no state
func WithHistory(history []*entities.Message, prompt string) string {
	if len(history) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, m := range history {
		if m.Origin().IsUser() {
			sb.WriteString("User: ")
		} else {
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(m.Content().String())
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(prompt)
	return sb.String()
}

// CategoryLabel renders a stored category name for display: "support_needs"
// becomes "Support needs"
func CategoryLabel(category string) string {
	label := strings.ReplaceAll(category, "_", " ")
	runes := []rune(label)
	if len(runes) == 0 {
		return label
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
