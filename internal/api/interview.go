package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/identity"
	"github.com/ashureev/techtree/internal/interview"
	"github.com/ashureev/techtree/internal/transcript"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// LimitRecorder counts throttled requests.
type LimitRecorder interface {
	IncRateLimited()
}

// InterviewConfig wires an InterviewHandler. Limiter, Transcript and
// Metrics are optional.
type InterviewConfig struct {
	Orchestrator *interview.Orchestrator
	Limiter      *RateLimiter
	Transcript   transcript.Logger
	Metrics      LimitRecorder
}

// InterviewHandler serves interview turns over HTTP.
type InterviewHandler struct {
	orch    *interview.Orchestrator
	limiter *RateLimiter
	locks   *sessionLocks
	log     transcript.Logger
	metrics LimitRecorder
}

// NewInterviewHandler creates an InterviewHandler.
func NewInterviewHandler(cfg InterviewConfig) *InterviewHandler {
	log := cfg.Transcript
	if log == nil {
		log = transcript.Noop{}
	}
	return &InterviewHandler{
		orch:    cfg.Orchestrator,
		limiter: cfg.Limiter,
		locks:   newSessionLocks(),
		log:     log,
		metrics: cfg.Metrics,
	}
}

// RegisterRoutes registers interview routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/interview", func(r chi.Router) {
		r.Post("/sessions", h.StartSession)
		r.Get("/session", h.GetSession)
		r.Post("/message", h.PostMessage)
	})
}

type startRequest struct {
	SessionID    string `json:"session_id"`
	Track        string `json:"track"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	MaxQuestions int    `json:"max_questions"`
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	Session   *domain.Session `json:"session"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type turnResponse struct {
	*interview.TurnResult
	Completed bool `json:"completed"`
}

// StartSession handles POST /api/interview/sessions. Without a session_id a
// fresh one is issued; the client sends it back in the session header.
func (h *InterviewHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sessionID := uuid.NewString()
	if id := strings.TrimSpace(req.SessionID); id != "" {
		if !identity.ValidSessionID(id) {
			Error(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		sessionID = id
	}
	if req.MaxQuestions < 0 {
		Error(w, http.StatusBadRequest, "max_questions cannot be negative")
		return
	}

	key := sessionKey(userID, sessionID)
	unlock := h.locks.Lock(key)
	defer unlock()

	sess, err := h.orch.Start(r.Context(), interview.StartInput{
		SessionID:    key,
		UserID:       userID,
		Track:        req.Track,
		Topic:        req.Topic,
		Difficulty:   req.Difficulty,
		MaxQuestions: req.MaxQuestions,
	})
	if err != nil {
		writeTurnError(w, err)
		return
	}

	slog.Info("Interview session started",
		"user_id", userID,
		"session_id", sessionID,
		"track", sess.Track,
		"topic", sess.Topic,
		"max_questions", sess.MaxQuestions,
	)
	JSON(w, http.StatusCreated, sessionResponse{SessionID: sessionID, Session: clientSession(sess, sessionID)})
}

// GetSession handles GET /api/interview/session.
func (h *InterviewHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	sess, err := h.orch.Snapshot(r.Context(), sessionKey(userID, sessionID), userID)
	if err != nil {
		writeTurnError(w, err)
		return
	}
	JSON(w, http.StatusOK, sessionResponse{SessionID: sessionID, Session: clientSession(sess, sessionID)})
}

// PostMessage handles POST /api/interview/message. With
// "Accept: text/event-stream" the replies are sent as SSE events followed
// by a final "done" event carrying the whole turn.
func (h *InterviewHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sessionID := identity.SessionIDFromContext(r.Context())

	if !h.allow(userID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.runTurn(r.Context(), userID, sessionID, req.Message, "interview_http", chiMiddleware.GetReqID(r.Context()))
	if err != nil {
		writeTurnError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		h.streamTurn(w, res)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *InterviewHandler) allow(userID string) bool {
	if h.limiter == nil || h.limiter.Allow(userID) {
		return true
	}
	if h.metrics != nil {
		h.metrics.IncRateLimited()
	}
	slog.Warn("Interview rate limit exceeded", "user_id", userID)
	return false
}

// runTurn serializes the turn on its session, records it in the transcript
// and rewrites the session id to the client-facing one.
func (h *InterviewHandler) runTurn(ctx context.Context, userID, sessionID, text, channel, requestID string) (*turnResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, interview.ErrEmptyMessage
	}

	unlock := h.locks.Lock(sessionKey(userID, sessionID))
	defer unlock()

	h.log.Log(transcript.Event{
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    channel,
		Direction:  transcript.DirectionInbound,
		EventType:  "user_message",
		ContentRaw: text,
		Meta:       map[string]any{"request_id": requestID},
	})

	res, err := h.orch.HandleTurn(ctx, interview.TurnInput{
		SessionID: sessionKey(userID, sessionID),
		UserID:    userID,
		Text:      text,
	})
	if err != nil {
		return nil, err
	}
	res.SessionID = sessionID
	res.Session = clientSession(res.Session, sessionID)

	for _, m := range res.Replies {
		h.log.Log(transcript.Event{
			UserID:     userID,
			SessionID:  sessionID,
			Channel:    channel,
			Direction:  transcript.DirectionOutbound,
			EventType:  "interviewer_" + string(m.Kind),
			ContentRaw: m.Text,
			Meta: map[string]any{
				"request_id": requestID,
				"intent":     string(res.Intent),
			},
		})
	}

	return &turnResponse{TurnResult: res, Completed: res.Session.Completed}, nil
}

func (h *InterviewHandler) streamTurn(w http.ResponseWriter, res *turnResponse) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		JSON(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var id int64
	for _, m := range res.Replies {
		data, err := json.Marshal(m)
		if err != nil {
			slog.Warn("Failed to marshal reply", "error", err)
			continue
		}
		id++
		if err := writeSSEWithID(w, id, "message", string(data)); err != nil {
			slog.Warn("Failed to write SSE message event", "error", err)
			return
		}
		flusher.Flush()
	}

	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("Failed to marshal turn", "error", err)
		return
	}
	id++
	if err := writeSSEWithID(w, id, "done", string(data)); err != nil {
		slog.Warn("Failed to write SSE done event", "error", err)
		return
	}
	flusher.Flush()
}
