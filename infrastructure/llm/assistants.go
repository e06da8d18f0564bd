package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carechat/application/ports"
	"carechat/domain/core/valueobjects"

	"go.uber.org/zap"
)

const (
	defaultAssistantsURL = "https://api.openai.com/v1"
	threadTTL            = 30 * 24 * time.Hour
)

// AssistantsConfig configures the poll-based assistants backend
type AssistantsConfig struct {
	BaseURL      string
	APIKey       string
	AssistantID  string
	PollInterval time.Duration
}

// AssistantsBackend talks to an OpenAI-style Assistants API. Each session key
// maps to one thread; a run is polled until it reaches a terminal status and
// the newest message is emitted as a single chunk.
type AssistantsBackend struct {
	cfg     AssistantsConfig
	http    *http.Client
	threads ports.Cache
	logger  *zap.Logger
}

// NewAssistantsBackend creates the backend. threads remembers the thread of
// each session key.
func NewAssistantsBackend(cfg AssistantsConfig, httpClient *http.Client, threads ports.Cache, logger *zap.Logger) *AssistantsBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAssistantsURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AssistantsBackend{cfg: cfg, http: httpClient, threads: threads, logger: logger}
}

func (b *AssistantsBackend) Name() string    { return "assistants" }
func (b *AssistantsBackend) Stateless() bool { return false }

type assistantsRun struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Message string `json:"message"`
	} `json:"last_error"`
}

type assistantsMessageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// StreamGenerate implements ports.Backend
func (b *AssistantsBackend) StreamGenerate(ctx context.Context, prompt string, key valueobjects.SessionKey) <-chan ports.Fragment {
	ch, out := newStream(ctx, b.Name())

	go func() {
		defer close(ch)

		reply, err := b.complete(ctx, prompt, key)
		if err != nil {
			out.fail(err)
			return
		}
		out.text(reply)
	}()
	return ch
}

// Generate implements ports.Backend
func (b *AssistantsBackend) Generate(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error) {
	return ports.Drain(ctx, b.StreamGenerate(ctx, prompt, key))
}

func (b *AssistantsBackend) complete(ctx context.Context, prompt string, key valueobjects.SessionKey) (string, error) {
	threadID, err := b.thread(ctx, key)
	if err != nil {
		return "", err
	}

	msg := map[string]string{"role": "user", "content": prompt}
	if err := b.do(ctx, http.MethodPost, "/threads/"+threadID+"/messages", msg, nil); err != nil {
		return "", fmt.Errorf("add message: %w", err)
	}

	var run assistantsRun
	if err := b.do(ctx, http.MethodPost, "/threads/"+threadID+"/runs", map[string]string{"assistant_id": b.cfg.AssistantID}, &run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for run.Status != "completed" {
		switch run.Status {
		case "failed", "cancelled", "expired":
			reason := run.Status
			if run.LastError != nil && run.LastError.Message != "" {
				reason += ": " + run.LastError.Message
			}
			return "", fmt.Errorf("run %s %s", run.ID, reason)
		}

		select {
		case <-ctx.Done():
			b.cancelRun(ctx, threadID, run.ID)
			return "", ctx.Err()
		case <-ticker.C:
		}

		if err := b.do(ctx, http.MethodGet, "/threads/"+threadID+"/runs/"+run.ID, nil, &run); err != nil {
			if ctx.Err() != nil {
				b.cancelRun(ctx, threadID, run.ID)
				return "", ctx.Err()
			}
			return "", fmt.Errorf("poll run: %w", err)
		}
	}

	var list assistantsMessageList
	if err := b.do(ctx, http.MethodGet, "/threads/"+threadID+"/messages?order=desc&limit=1", nil, &list); err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	if len(list.Data) == 0 {
		return "", errors.New("run completed without a message")
	}

	var sb strings.Builder
	for _, part := range list.Data[0].Content {
		if part.Type == "text" {
			sb.WriteString(part.Text.Value)
		}
	}
	return sb.String(), nil
}

// cancelRun asks the provider to stop a run the caller no longer waits for.
// Best effort: failures are only logged.
func (b *AssistantsBackend) cancelRun(ctx context.Context, threadID, runID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := b.do(cancelCtx, http.MethodPost, "/threads/"+threadID+"/runs/"+runID+"/cancel", map[string]any{}, nil); err != nil {
		b.logger.Warn("Failed to cancel assistants run", zap.String("runID", runID), zap.Error(err))
	}
}

// thread returns the thread bound to key, creating it on first use
func (b *AssistantsBackend) thread(ctx context.Context, key valueobjects.SessionKey) (string, error) {
	cacheKey := "thread:" + key.String()
	if id, err := b.threads.Get(ctx, cacheKey); err == nil {
		return string(id), nil
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := b.do(ctx, http.MethodPost, "/threads", map[string]any{}, &created); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if err := b.threads.Set(ctx, cacheKey, []byte(created.ID), threadTTL); err != nil {
		b.logger.Warn("Failed to remember assistants thread", zap.String("sessionKey", key.String()), zap.Error(err))
	}
	return created.ID, nil
}

func (b *AssistantsBackend) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
