package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler_StatusAndLogLevel(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		level  zapcore.Level
	}{
		{name: "unknown conversation", err: NewUnknownConversationError("c1"), status: http.StatusNotFound, level: zapcore.InfoLevel},
		{name: "not found", err: NewNotFoundError("profile"), status: http.StatusNotFound, level: zapcore.InfoLevel},
		{name: "forbidden", err: NewForbiddenError(""), status: http.StatusForbidden, level: zapcore.InfoLevel},
		{name: "validation", err: NewValidationError("bad"), status: http.StatusBadRequest, level: zapcore.WarnLevel},
		{name: "database", err: NewDatabaseError("save", assert.AnError), status: http.StatusInternalServerError, level: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			core, logs := observer.New(zapcore.DebugLevel)
			h := NewErrorHandler(zap.New(core), false)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/c1", nil)

			// Act
			h.Handle(rec, req, tt.err)

			// Assert
			assert.Equal(t, tt.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, string(GetAppError(tt.err).Type), body.Type)
			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tt.level, logs.All()[0].Level)
		})
	}
}

func TestErrorHandler_PlainErrorIsHidden(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()

	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "An internal error occurred")
}
