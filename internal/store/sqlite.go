package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes session writes to keep SQLITE_BUSY rare
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		total_stars INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS skill_progress (
		user_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		level INTEGER NOT NULL DEFAULT 1,
		stars INTEGER NOT NULL DEFAULT 0,
		last_tested_at INTEGER,
		PRIMARY KEY (user_id, subject)
	);

	CREATE TABLE IF NOT EXISTS interview_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interview_sessions_updated ON interview_sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_interview_sessions_user ON interview_sessions(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, nickname, total_stars, created_at, updated_at FROM users WHERE user_id = ?`

	var user domain.User
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Nickname, &user.TotalStars, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, nickname, total_stars, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		nickname = excluded.nickname,
		total_stars = excluded.total_stars,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Nickname, user.TotalStars,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetSkillProgress retrieves one subject's progress for a user.
func (s *SQLiteStore) GetSkillProgress(ctx context.Context, userID, subject string) (*domain.SkillProgress, error) {
	query := `
		SELECT user_id, subject, level, stars, last_tested_at
		FROM skill_progress WHERE user_id = ? AND subject = ?`

	p, err := scanSkill(s.db.QueryRowContext(ctx, query, userID, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan skill progress: %w", err)
	}
	return p, nil
}

// ListSkillProgress returns all subjects a user has been tested on, by subject name.
func (s *SQLiteStore) ListSkillProgress(ctx context.Context, userID string) ([]*domain.SkillProgress, error) {
	query := `
		SELECT user_id, subject, level, stars, last_tested_at
		FROM skill_progress WHERE user_id = ? ORDER BY subject`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query skill progress: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close skill progress rows", "error", closeErr)
		}
	}()

	var out []*domain.SkillProgress
	for rows.Next() {
		p, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill progress row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skill progress: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkill(row rowScanner) (*domain.SkillProgress, error) {
	var p domain.SkillProgress
	var lastTested sql.NullInt64
	if err := row.Scan(&p.UserID, &p.Subject, &p.Level, &p.Stars, &lastTested); err != nil {
		return nil, err
	}
	if lastTested.Valid {
		p.LastTestedAt = time.Unix(lastTested.Int64, 0)
	}
	return &p, nil
}

// UpsertSkillProgress creates or updates a skill progress record.
func (s *SQLiteStore) UpsertSkillProgress(ctx context.Context, p *domain.SkillProgress) error {
	query := `
	INSERT INTO skill_progress (user_id, subject, level, stars, last_tested_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, subject) DO UPDATE SET
		level = excluded.level,
		stars = excluded.stars,
		last_tested_at = COALESCE(excluded.last_tested_at, skill_progress.last_tested_at)`

	var lastTested interface{}
	if !p.LastTestedAt.IsZero() {
		lastTested = p.LastTestedAt.Unix()
	}

	return shared.RetryOnConflict(ctx, "upsert skill progress", writeRetries, writeBaseDelay, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, p.UserID, p.Subject, p.Level, p.Stars, lastTested)
		return err
	})
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM interview_sessions WHERE session_id = ?`, sessionID,
	).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan interview session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
		return nil, fmt.Errorf("decode interview session %s: %w", sessionID, err)
	}
	return &session, nil
}

// UpsertSession overwrites the stored session.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	if session == nil {
		return ErrInvalidSession
	}
	if session.ID == "" {
		return ErrInvalidID
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode interview session: %w", err)
	}

	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO interview_sessions (session_id, user_id, completed, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			completed = excluded.completed,
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	return shared.RetryOnConflict(ctx, "upsert interview session", writeRetries, writeBaseDelay, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, session.UserID, session.Completed, string(data),
			session.CreatedAt.Unix(), updatedAt.Unix(),
		)
		return err
	})
}

// DeleteStaleSessions removes sessions not updated within ttl.
func (s *SQLiteStore) DeleteStaleSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete stale sessions", writeRetries, writeBaseDelay, func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM interview_sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}
