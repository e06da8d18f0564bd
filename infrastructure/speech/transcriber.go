// Package speech converts recorded audio to text
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"carechat/application/ports"
)

// OpenAITranscriber calls an OpenAI-compatible /audio/transcriptions endpoint
type OpenAITranscriber struct {
	url    string
	apiKey string
	model  string
	http   *http.Client
}

// NewOpenAITranscriber creates a transcriber. baseURL is the API root, e.g.
// https://api.openai.com/v1
func NewOpenAITranscriber(baseURL, apiKey, model string, httpClient *http.Client) *OpenAITranscriber {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAITranscriber{
		url:    strings.TrimRight(baseURL, "/") + "/audio/transcriptions",
		apiKey: apiKey,
		model:  model,
		http:   httpClient,
	}
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe implements ports.Transcriber
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (ports.Transcription, error) {
	if len(audio) == 0 {
		return ports.Transcription{}, ports.ErrNoTranscription
	}
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return ports.Transcription{}, err
	}
	if _, err := part.Write(audio); err != nil {
		return ports.Transcription{}, err
	}
	_ = form.WriteField("model", t.model)
	_ = form.WriteField("response_format", "verbose_json")
	if err := form.Close(); err != nil {
		return ports.Transcription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, &body)
	if err != nil {
		return ports.Transcription{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return ports.Transcription{}, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ports.Transcription{}, fmt.Errorf("transcription status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.Transcription{}, fmt.Errorf("decode transcription: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return ports.Transcription{}, ports.ErrNoTranscription
	}
	return ports.Transcription{Text: text, LanguageCode: out.Language}, nil
}
