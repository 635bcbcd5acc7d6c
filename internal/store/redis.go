package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 72 * time.Hour

// RedisSessionStore keeps sessions in Redis as JSON values. Expiry is left
// to Redis key TTLs, refreshed on every write.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisSessionStore.
type RedisOption func(*RedisSessionStore)

// WithTTL sets how long an untouched session survives. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSessionStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSessionStore) {
		s.prefix = prefix
	}
}

// NewRedisSessionStore wraps an existing client.
func NewRedisSessionStore(client *redis.Client, opts ...RedisOption) *RedisSessionStore {
	s := &RedisSessionStore{
		client: client,
		ttl:    defaultRedisTTL,
		prefix: "techtree",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects and pings, returning a ready store.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisSessionStore(client, opts...), nil
}

func (s *RedisSessionStore) sessionKey(id string) string {
	return s.prefix + ":session:" + id
}

func (s *RedisSessionStore) userIndexKey(userID string) string {
	return s.prefix + ":user:" + userID + ":sessions"
}

// GetSession retrieves a session by ID.
func (s *RedisSessionStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// UpsertSession writes the session and indexes it under its user.
func (s *RedisSessionStore) UpsertSession(ctx context.Context, session *domain.Session) error {
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

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, s.ttl)
	if session.UserID != "" {
		indexKey := s.userIndexKey(session.UserID)
		pipe.SAdd(ctx, indexKey, session.ID)
		if s.ttl > 0 {
			pipe.Expire(ctx, indexKey, s.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// ListUserSessions returns the IDs of sessions written for a user.
func (s *RedisSessionStore) ListUserSessions(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	ids, err := s.client.SMembers(ctx, s.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list user sessions: %w", err)
	}
	return ids, nil
}

// DeleteStaleSessions is a no-op: Redis expires keys itself.
func (s *RedisSessionStore) DeleteStaleSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

// Ping verifies Redis connectivity.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
