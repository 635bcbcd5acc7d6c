// Package api provides HTTP handlers for the interview API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/interview"
)

// defaultMaxRequestBodySize is the maximum accepted request body (1MB).
const defaultMaxRequestBodySize = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// errorStatus maps orchestrator errors onto HTTP statuses and client-safe
// messages.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, interview.ErrEmptyMessage):
		return http.StatusBadRequest, "message is required"
	case errors.Is(err, interview.ErrSessionCompleted):
		return http.StatusConflict, "session_completed"
	case errors.Is(err, interview.ErrSessionStarted):
		return http.StatusConflict, "session_already_started"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeTurnError(w http.ResponseWriter, err error) {
	status, msg := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Interview request failed", "error", err)
	}
	Error(w, status, msg)
}

// decodeBody reads a JSON body of at most defaultMaxRequestBodySize bytes.
// It writes the error response itself and reports whether decoding worked.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			Error(w, http.StatusBadRequest, "request body is required")
		default:
			Error(w, http.StatusBadRequest, "invalid request body")
		}
		return false
	}
	return true
}

func sessionKey(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// clientSession returns a copy of sess carrying the client-facing ID
// instead of the internal store key.
func clientSession(sess *domain.Session, sessionID string) *domain.Session {
	if sess == nil {
		return nil
	}
	c := sess.Clone()
	c.ID = sessionID
	return c
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
