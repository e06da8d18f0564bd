package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "carechat/pkg/errors"
)

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// ParseJSONBody decodes a JSON request body of at most maxBytes. An empty
// body decodes to the zero value. Malformed bodies are validation errors.
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.NewValidationError("request body too large")
		}
		return pkgerrors.NewValidationError("invalid JSON body: " + err.Error())
	}
	return nil
}
