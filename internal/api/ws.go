package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/techtree/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketHandler runs interview turns over a websocket.
type WebSocketHandler struct {
	turns         *InterviewHandler
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a websocket handler that shares locking,
// limiting and transcripts with turns.
func NewWebSocketHandler(turns *InterviewHandler, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{turns: turns, allowedOrigin: allowedOrigin, isDev: isDev}
}

// wsMessage is the frame format in both directions.
type wsMessage struct {
	Type    string        `json:"type"`
	Content string        `json:"content,omitempty"`
	Error   string        `json:"error,omitempty"`
	Turn    *turnResponse `json:"turn,omitempty"`
	Session any           `json:"session,omitempty"`
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Interview websocket request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	ctx := r.Context()
	sess, err := h.turns.orch.Snapshot(ctx, sessionKey(userID, sessionID), userID)
	if err != nil {
		slog.Error("Failed to load interview session", "error", err, "user_id", userID)
		_ = h.write(ctx, ws, wsMessage{Type: "error", Error: "session_unavailable"})
		return
	}
	if err := h.write(ctx, ws, wsMessage{Type: "session", Session: clientSession(sess, sessionID)}); err != nil {
		return
	}

	h.readLoop(ctx, ws, userID, sessionID)
	slog.Info("Interview websocket closed", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		var msg wsMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("Websocket closed by client", "user_id", userID)
			} else {
				slog.Warn("Websocket read error", "error", err, "user_id", userID)
			}
			return
		}

		if msg.Type != "message" {
			if err := h.write(ctx, ws, wsMessage{Type: "error", Error: "unsupported message type"}); err != nil {
				return
			}
			continue
		}

		if !h.turns.allow(userID) {
			if err := h.write(ctx, ws, wsMessage{Type: "error", Error: "rate limit exceeded"}); err != nil {
				return
			}
			continue
		}

		res, err := h.turns.runTurn(ctx, userID, sessionID, msg.Content, "interview_ws", "")
		if err != nil {
			status, text := errorStatus(err)
			if status == http.StatusInternalServerError {
				slog.Error("Interview turn failed", "error", err, "user_id", userID)
			}
			if err := h.write(ctx, ws, wsMessage{Type: "error", Error: text}); err != nil {
				return
			}
			continue
		}
		if err := h.write(ctx, ws, wsMessage{Type: "turn", Turn: res}); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) write(ctx context.Context, ws *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, ws, msg); err != nil {
		slog.Debug("Websocket write error", "error", err)
		return err
	}
	return nil
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Websocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
