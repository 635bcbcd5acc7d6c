package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/techtree/internal/domain"
)

// MemoryStore is an in-process Repository. Sessions are stored as encoded
// JSON so callers never share memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	updated  map[string]time.Time
	users    map[string]domain.User
	skills   map[string]map[string]domain.SkillProgress
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		updated:  make(map[string]time.Time),
		users:    make(map[string]domain.User),
		skills:   make(map[string]map[string]domain.SkillProgress),
	}
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}
	m.mu.RLock()
	data, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// UpsertSession overwrites the stored session.
func (m *MemoryStore) UpsertSession(_ context.Context, session *domain.Session) error {
	if session == nil {
		return ErrInvalidSession
	}
	if session.ID == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	updated := session.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	m.mu.Lock()
	m.sessions[session.ID] = data
	m.updated[session.ID] = updated
	m.mu.Unlock()
	return nil
}

// DeleteStaleSessions removes sessions not updated within ttl.
func (m *MemoryStore) DeleteStaleSessions(_ context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, at := range m.updated {
		if at.Before(threshold) {
			delete(m.sessions, id)
			delete(m.updated, id)
			deleted++
		}
	}
	return deleted, nil
}

// GetUser retrieves a user by their user ID.
func (m *MemoryStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// UpsertUser creates or updates a user record.
func (m *MemoryStore) UpsertUser(_ context.Context, user *domain.User) error {
	if user == nil || user.UserID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[user.UserID]; ok {
		u := *user
		u.CreatedAt = existing.CreatedAt
		m.users[user.UserID] = u
		return nil
	}
	m.users[user.UserID] = *user
	return nil
}

// GetSkillProgress retrieves one subject's progress for a user.
func (m *MemoryStore) GetSkillProgress(_ context.Context, userID, subject string) (*domain.SkillProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.skills[userID][subject]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListSkillProgress returns all subjects a user has been tested on, by subject name.
func (m *MemoryStore) ListSkillProgress(_ context.Context, userID string) ([]*domain.SkillProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.SkillProgress, 0, len(m.skills[userID]))
	for _, p := range m.skills[userID] {
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// UpsertSkillProgress creates or updates a skill progress record.
func (m *MemoryStore) UpsertSkillProgress(_ context.Context, p *domain.SkillProgress) error {
	if p == nil || p.UserID == "" || p.Subject == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skills[p.UserID] == nil {
		m.skills[p.UserID] = make(map[string]domain.SkillProgress)
	}
	m.skills[p.UserID][p.Subject] = *p
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
