package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"carechat/application/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name     string
		response string
		status   int
		want     ports.Transcription
		wantErr  error
	}{
		{"text", `{"text":" hello there ","language":"en"}`, http.StatusOK, ports.Transcription{Text: "hello there", LanguageCode: "en"}, nil},
		{"silence", `{"text":"   "}`, http.StatusOK, ports.Transcription{}, ports.ErrNoTranscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
				assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
				assert.NoError(t, r.ParseMultipartForm(1<<20))
				assert.Equal(t, "whisper-1", r.FormValue("model"))
				if f, _, err := r.FormFile("file"); assert.NoError(t, err) {
					b, _ := io.ReadAll(f)
					assert.Equal(t, "RIFF", string(b))
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()
			tr := NewOpenAITranscriber(srv.URL+"/v1", "key", "whisper-1", srv.Client())

			got, err := tr.Transcribe(context.Background(), []byte("RIFF"), "a.wav")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	tr := NewOpenAITranscriber("http://unused", "", "whisper-1", nil)

	_, err := tr.Transcribe(context.Background(), nil, "")

	assert.ErrorIs(t, err, ports.ErrNoTranscription)
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	tr := NewOpenAITranscriber(srv.URL, "", "whisper-1", srv.Client())

	_, err := tr.Transcribe(context.Background(), []byte("x"), "a.wav")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrNoTranscription)
	assert.Contains(t, err.Error(), "500")
}
