package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"carechat/application/ports"
	"carechat/domain/config"
	"carechat/domain/core/entities"
	"carechat/domain/core/validators"
	"carechat/domain/core/valueobjects"
	pkgerrors "carechat/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const extractionPromptTemplate = `You maintain a profile of long-lived facts about a user of a support chat.
Read the exchange below and list facts worth remembering in future conversations.
Use only these categories: %s.
Answer with a single JSON object mapping each category to an array of short fact strings.
Omit categories with no facts. Answer {} when there is nothing to remember. Do not add any other text.

User: %s
Assistant: %s`

// ProfileCacheKey is the cache key of an owner's profile snapshot
func ProfileCacheKey(owner valueobjects.Identity) string {
	return "profile:" + owner.String()
}

// ExtractionSessionKey keeps extraction calls out of the user's own backend
// session on stateful backends
func ExtractionSessionKey(owner valueobjects.Identity) valueobjects.SessionKey {
	return valueobjects.SessionKeyFromString(valueobjects.DeriveSessionKey(owner).String() + ":profile")
}

// BuildExtractionPrompt renders the fixed extraction prompt
func BuildExtractionPrompt(categories []string, userMessage, reply string) string {
	return fmt.Sprintf(extractionPromptTemplate, strings.Join(categories, ", "), userMessage, reply)
}

// ParseExtraction reads a category to fact list mapping out of backend output.
// Code fences and text around the outermost JSON object are ignored.
func ParseExtraction(output string) (entities.Facts, error) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end < start {
		return nil, pkgerrors.NewMalformedExtractionError(errors.New("no JSON object in output"))
	}

	var facts map[string][]string
	if err := json.Unmarshal([]byte(output[start:end+1]), &facts); err != nil {
		return nil, pkgerrors.NewMalformedExtractionError(err)
	}
	return entities.Facts(facts), nil
}

// ProfileService extracts facts from completed turns and merges them into
// profiles. Merges for one owner are serialized through the locker.
type ProfileService struct {
	backend   ports.Backend
	profiles  ports.ProfileRepository
	locker    ports.Locker
	cache     ports.Cache
	publisher ports.EventPublisher
	metrics   ports.TurnMetrics
	validator *validators.ExtractionValidator
	domain    *config.DomainConfig
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewProfileService creates a new profile service. profiles must read
// from the authoritative store, not a cache.
func NewProfileService(
	backend ports.Backend,
	profiles ports.ProfileRepository,
	locker ports.Locker,
	cache ports.Cache,
	publisher ports.EventPublisher,
	metrics ports.TurnMetrics,
	domain *config.DomainConfig,
	timeout time.Duration,
	logger *zap.Logger,
) *ProfileService {
	return &ProfileService{
		backend:   backend,
		profiles:  profiles,
		locker:    locker,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		validator: validators.NewExtractionValidator(domain),
		domain:    domain,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one extraction job. Guest jobs, malformed output and timeouts
// are no-ops and return nil. Only store and lock failures are returned.
func (s *ProfileService) Run(ctx context.Context, job ports.ExtractionJob) error {
	start := time.Now()
	owner := valueobjects.NewIdentity(job.Owner)
	if owner.IsGuest() {
		s.metrics.ObserveExtraction(ports.OutcomeSkipped, time.Since(start))
		return nil
	}

	ctx, span := otel.Tracer("carechat/profile").Start(ctx, "profile.extract")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", job.ConversationID))

	facts, err := s.Extract(ctx, owner, job.UserMessage, job.AssistantReply)
	if err != nil {
		outcome := ports.OutcomeError
		switch {
		case pkgerrors.IsMalformedExtraction(err):
			outcome = ports.OutcomeMalformed
		case errors.Is(err, context.DeadlineExceeded):
			outcome = ports.OutcomeTimeout
		}
		s.logger.Warn("Profile extraction skipped",
			zap.String("owner", owner.String()),
			zap.String("conversationID", job.ConversationID),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		span.SetStatus(codes.Error, outcome)
		s.metrics.ObserveExtraction(outcome, time.Since(start))
		return nil
	}

	added, err := s.Merge(ctx, owner, facts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "merge failed")
		s.metrics.ObserveExtraction(ports.OutcomeError, time.Since(start))
		return err
	}

	outcome := ports.OutcomeUnchanged
	if added > 0 {
		outcome = ports.OutcomeMerged
	}
	span.SetAttributes(attribute.Int("profile.facts_added", added))
	s.metrics.ObserveExtraction(outcome, time.Since(start))
	return nil
}

// Extract asks the backend for facts about the exchange, bounded by the
// extraction timeout
func (s *ProfileService) Extract(ctx context.Context, owner valueobjects.Identity, userMessage, reply string) (entities.Facts, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	prompt := BuildExtractionPrompt(s.domain.ExtractionCategories, userMessage, reply)
	output, err := s.backend.Generate(ctx, prompt, ExtractionSessionKey(owner))
	if err != nil {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, pkgerrors.NewTimeoutError("profile extraction").WithCause(ctxErr)
		case ctxErr != nil:
			return nil, ctxErr
		}
		return nil, err
	}

	facts, err := ParseExtraction(output)
	if err != nil {
		return nil, err
	}
	return s.validator.Normalize(facts), nil
}

// Merge unions facts into the owner's profile under the owner's lock and
// returns how many new facts were stored
func (s *ProfileService) Merge(ctx context.Context, owner valueobjects.Identity, facts entities.Facts) (int, error) {
	if owner.IsGuest() || len(facts) == 0 {
		return 0, nil
	}

	lease, err := s.locker.Acquire(ctx, ProfileCacheKey(owner))
	if err != nil {
		return 0, fmt.Errorf("acquire profile lock: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.logger.Warn("Failed to release profile lock", zap.String("owner", owner.String()), zap.Error(err))
		}
	}()

	profile, err := s.profiles.Get(ctx, owner)
	if errors.Is(err, ports.ErrNotFound) {
		profile = entities.NewProfile(owner)
	} else if err != nil {
		return 0, pkgerrors.NewDatabaseError("get profile", err)
	}

	added := profile.Merge(facts, s.now().UTC())
	if added == 0 {
		return 0, nil
	}

	if err := s.profiles.Save(ctx, profile); err != nil {
		return 0, pkgerrors.NewDatabaseError("save profile", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, ProfileCacheKey(owner)); err != nil {
			s.logger.Warn("Failed to invalidate profile cache", zap.String("owner", owner.String()), zap.Error(err))
		}
	}

	if err := s.publisher.PublishBatch(ctx, profile.GetUncommittedEvents()); err != nil {
		s.logger.Warn("Failed to publish profile events", zap.String("owner", owner.String()), zap.Error(err))
	} else {
		profile.MarkEventsAsCommitted()
	}

	s.logger.Info("Profile merged",
		zap.String("owner", owner.String()),
		zap.Int("added", added),
		zap.Int("version", profile.Version()),
	)
	return added, nil
}
