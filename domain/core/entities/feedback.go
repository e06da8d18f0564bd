package entities

import (
	"fmt"
	"strings"
	"time"

	"carechat/domain/core/valueobjects"
	"carechat/domain/events"
	pkgerrors "carechat/pkg/errors"

	"github.com/google/uuid"
)

// FeedbackKind classifies feedback
type FeedbackKind string

const (
	FeedbackGeneral FeedbackKind = "general"
	FeedbackBug     FeedbackKind = "bug"
	FeedbackFeature FeedbackKind = "feature"
	FeedbackOther   FeedbackKind = "other"
)

// Feedback is a free-text note left by a user about the service
type Feedback struct {
	id        string
	kind      FeedbackKind
	rating    int
	message   string
	author    valueobjects.Identity
	createdAt time.Time

	events []events.DomainEvent
}

// NewFeedback validates and creates feedback. A zero rating means unrated.
func NewFeedback(kind FeedbackKind, rating int, message string, author valueobjects.Identity, now time.Time) (*Feedback, error) {
	if kind == "" {
		kind = FeedbackGeneral
	}
	switch kind {
	case FeedbackGeneral, FeedbackBug, FeedbackFeature, FeedbackOther:
	default:
		return nil, pkgerrors.NewValidationError(fmt.Sprintf("invalid feedback type: %s", kind))
	}
	if rating < 0 || rating > 5 {
		return nil, pkgerrors.NewValidationError("rating must be between 1 and 5")
	}
	if strings.TrimSpace(message) == "" {
		return nil, pkgerrors.NewMissingInputError("message")
	}

	f := &Feedback{
		id:        uuid.New().String(),
		kind:      kind,
		rating:    rating,
		message:   message,
		author:    author,
		createdAt: now,
	}
	f.events = append(f.events, events.NewFeedbackSubmitted(f.id, string(kind), rating, now))
	return f, nil
}

// ReconstructFeedback rebuilds feedback from storage
func ReconstructFeedback(id string, kind FeedbackKind, rating int, message string, author valueobjects.Identity, createdAt time.Time) *Feedback {
	return &Feedback{id: id, kind: kind, rating: rating, message: message, author: author, createdAt: createdAt}
}

func (f *Feedback) ID() string                    { return f.id }
func (f *Feedback) Kind() FeedbackKind            { return f.kind }
func (f *Feedback) Rating() int                   { return f.rating }
func (f *Feedback) Message() string               { return f.message }
func (f *Feedback) Author() valueobjects.Identity { return f.author }
func (f *Feedback) CreatedAt() time.Time          { return f.createdAt }

// GetUncommittedEvents returns events raised since creation
func (f *Feedback) GetUncommittedEvents() []events.DomainEvent {
	return f.events
}
