package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/herderhub/herderhub-api/internal/apperr"
)

type APIError struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details map[string]string) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// WriteAppError renders err with its public message only. Causes of 5xx
// errors are logged, never returned.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	code := string(apperr.Internal)
	var fields map[string]string
	if ae, ok := apperr.As(err); ok {
		code = string(ae.Kind)
		fields = ae.Fields
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	WriteError(w, status, code, apperr.PublicMessage(err), fields)
}

// DecodeJSON reads a single JSON object into dst. Unknown fields are
// accepted; an empty body is an error.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return apperr.InvalidErr("request body too large", nil)
		case errors.Is(err, io.EOF):
			return apperr.InvalidErr("request body is empty", nil)
		}
		return apperr.InvalidErr("malformed JSON body", nil)
	}
	return nil
}
