package handlers

import (
	"errors"
	"io"
	"net/http"

	"carechat/application/ports"
	"carechat/pkg/common"
	pkgerrors "carechat/pkg/errors"

	"go.uber.org/zap"
)

const maxAudioBytes = 25 << 20

// TranscriptionHandler turns uploaded audio into text
type TranscriptionHandler struct {
	transcriber ports.Transcriber
	errs        *pkgerrors.ErrorHandler
	logger      *zap.Logger
}

// NewTranscriptionHandler creates a new handler. A nil transcriber disables
// the endpoint.
func NewTranscriptionHandler(transcriber ports.Transcriber, errs *pkgerrors.ErrorHandler, logger *zap.Logger) *TranscriptionHandler {
	return &TranscriptionHandler{transcriber: transcriber, errs: errs, logger: logger}
}

// Transcribe handles POST /api/v1/transcriptions with a multipart "audio" file
func (h *TranscriptionHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		h.errs.Handle(w, r, pkgerrors.NewUnavailableError("transcription"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+(1<<20))
	file, header, err := r.FormFile("audio")
	if err != nil {
		h.errs.Handle(w, r, pkgerrors.NewMissingInputError("audio"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		h.errs.Handle(w, r, pkgerrors.NewValidationError("could not read audio"))
		return
	}
	if len(audio) == 0 {
		h.errs.Handle(w, r, pkgerrors.NewMissingInputError("audio"))
		return
	}
	if len(audio) > maxAudioBytes {
		h.errs.Handle(w, r, pkgerrors.NewValidationError("audio file too large"))
		return
	}

	result, err := h.transcriber.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		if errors.Is(err, ports.ErrNoTranscription) {
			h.errs.Handle(w, r, pkgerrors.NewNoTranscriptionError(err))
			return
		}
		h.errs.Handle(w, r, pkgerrors.NewExternalError("transcription", err))
		return
	}

	h.logger.Debug("Audio transcribed",
		zap.Int("bytes", len(audio)),
		zap.String("language", result.LanguageCode),
	)
	common.RespondJSON(w, http.StatusOK, result)
}
