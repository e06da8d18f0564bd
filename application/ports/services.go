package ports

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLockHeld is returned when a lock could not be taken before the wait ran out
	ErrLockHeld = errors.New("lock already held")

	// ErrCacheMiss is returned by caches for absent or expired keys
	ErrCacheMiss = errors.New("cache miss")

	// ErrNoTranscription is returned when audio yields no text
	ErrNoTranscription = errors.New("no transcription")
)

// ExtractionJob is the input of one profile extraction run
type ExtractionJob struct {
	Owner          string    `json:"owner"`
	ConversationID string    `json:"conversation_id"`
	UserMessage    string    `json:"user_message"`
	AssistantReply string    `json:"assistant_reply"`
	RequestedAt    time.Time `json:"requested_at"`
}

// ExtractionDispatcher hands a job to a detached worker. Dispatch returns once
// the job is queued; it never waits for the extraction itself.
type ExtractionDispatcher interface {
	Dispatch(ctx context.Context, job ExtractionJob) error
}

// ExtractionRunner executes one job. Implemented by the profile service and
// called by every dispatcher's worker side.
type ExtractionRunner interface {
	Run(ctx context.Context, job ExtractionJob) error
}

// Locker provides per-key mutual exclusion
type Locker interface {
	// Acquire blocks until the key is held, the wait times out (ErrLockHeld)
	// or ctx ends
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock
type Lease interface {
	Release(ctx context.Context) error
}

// Cache defines the interface for byte caching
type Cache interface {
	// Get retrieves a value, or ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error
}

// Transcription is the result of speech-to-text
type Transcription struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
}

// Transcriber converts audio to text. Returns ErrNoTranscription when the
// audio contains no recognizable speech.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error)
}

// Turn outcomes reported to TurnMetrics
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
	OutcomeMerged    = "merged"
	OutcomeUnchanged = "unchanged"
	OutcomeMalformed = "malformed"
	OutcomeTimeout   = "timeout"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// TurnMetrics records turn and extraction measurements
type TurnMetrics interface {
	ObserveTurn(backend, outcome string, duration time.Duration, chunks int)
	ObserveFirstChunk(backend string, latency time.Duration)
	ObserveExtraction(outcome string, duration time.Duration)
}
