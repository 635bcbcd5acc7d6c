// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/techtree/internal/domain"
)

var (
	// ErrInvalidID is returned when a record is addressed with an empty key.
	ErrInvalidID = errors.New("invalid id: must not be empty")
	// ErrInvalidSession is returned when a nil session is saved.
	ErrInvalidSession = errors.New("invalid session: must not be nil")
)

// SessionRepository persists interview sessions. GetSession returns
// (nil, nil) when the session does not exist.
type SessionRepository interface {
	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpsertSession overwrites the stored session. Last write wins.
	UpsertSession(ctx context.Context, session *domain.Session) error

	// DeleteStaleSessions removes sessions not updated within ttl.
	DeleteStaleSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Repository persists users and their skill progress alongside sessions.
type Repository interface {
	SessionRepository

	// GetUser retrieves a user by their user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// GetSkillProgress retrieves one subject's progress for a user.
	GetSkillProgress(ctx context.Context, userID, subject string) (*domain.SkillProgress, error)

	// ListSkillProgress returns all subjects a user has been tested on.
	ListSkillProgress(ctx context.Context, userID string) ([]*domain.SkillProgress, error)

	// UpsertSkillProgress creates or updates a skill progress record.
	UpsertSkillProgress(ctx context.Context, progress *domain.SkillProgress) error
}
