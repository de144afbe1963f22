// Package httpx holds the JSON envelope every endpoint answers with and the
// mapping from apperr kinds to responses.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
)

// Envelope is the response body shape.
type Envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Count   *int              `json:"count,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a successful envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// List writes a successful envelope with a count.
func List(w http.ResponseWriter, data any, count int) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Count: &count})
}

// Responder writes error envelopes. Internal error detail is exposed only when
// Dev is set.
type Responder struct {
	Logger *zap.SugaredLogger
	Dev    bool
}

func (rs Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal("Internal server error", err)
	}
	status := ae.Kind.Status()
	env := Envelope{Success: false, Message: ae.Message, Errors: ae.Fields}
	if status >= http.StatusInternalServerError {
		rs.Logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		if rs.Dev && ae.Err != nil {
			env.Error = ae.Err.Error()
		}
	} else {
		rs.Logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "kind", ae.Kind.String(), "msg", ae.Message)
	}
	WriteJSON(w, status, env)
}

// Decode reads a JSON body into dst. An empty body leaves dst untouched.
func Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperr.Validation("Request body too large", nil)
	}
	return apperr.Validation("Invalid request body", nil)
}
