package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/store"
)

// Built-in session defaults.
const (
	DefaultTrack        = "Python"
	DefaultTopic        = "General"
	DefaultDifficulty   = "Intermediate"
	DefaultMaxQuestions = 5
)

// DefaultSessionDefaults returns the built-in configuration for new sessions.
func DefaultSessionDefaults() domain.SessionDefaults {
	return domain.SessionDefaults{
		Track:        DefaultTrack,
		Topic:        DefaultTopic,
		Difficulty:   DefaultDifficulty,
		MaxQuestions: DefaultMaxQuestions,
	}
}

// Sessions is the session state store used by the orchestrator. A session
// that does not exist yet is created with defaults and persisted on first
// load, so repeated loads agree.
type Sessions struct {
	repo     store.SessionRepository
	defaults domain.SessionDefaults
	now      func() time.Time
}

// NewSessions wraps repo. Empty fields in defaults fall back to the
// built-in values.
func NewSessions(repo store.SessionRepository, defaults domain.SessionDefaults) *Sessions {
	return &Sessions{
		repo:     repo,
		defaults: mergeDefaults(defaults, DefaultSessionDefaults()),
		now:      time.Now,
	}
}

// Defaults returns the effective defaults.
func (s *Sessions) Defaults() domain.SessionDefaults {
	return s.defaults
}

func mergeDefaults(d, fallback domain.SessionDefaults) domain.SessionDefaults {
	if strings.TrimSpace(d.Track) == "" {
		d.Track = fallback.Track
	}
	if strings.TrimSpace(d.Topic) == "" {
		d.Topic = fallback.Topic
	}
	if strings.TrimSpace(d.Difficulty) == "" {
		d.Difficulty = fallback.Difficulty
	}
	if d.MaxQuestions < 1 {
		d.MaxQuestions = fallback.MaxQuestions
	}
	return d
}

// Load returns the session for sessionID, creating it for userID when absent.
func (s *Sessions) Load(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess != nil {
		return sess, nil
	}

	sess = domain.NewSession(sessionID, userID, s.defaults, s.now().UTC())
	if err := s.repo.UpsertSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session %s: %w", sessionID, err)
	}
	// Reload so the caller sees exactly what a later Load will return.
	stored, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reload session %s: %w", sessionID, err)
	}
	if stored == nil {
		return sess, nil
	}
	return stored, nil
}

// Peek returns the stored session without creating one.
func (s *Sessions) Peek(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return sess, nil
}

// Save overwrites the stored session.
func (s *Sessions) Save(ctx context.Context, sess *domain.Session) error {
	if err := s.repo.UpsertSession(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}
