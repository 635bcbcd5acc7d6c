// Package sweeper removes interview sessions that have been idle for too long.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/techtree/internal/shared"
	"github.com/ashureev/techtree/internal/store"
)

// DefaultInterval is how often the sweeper runs when no interval is given.
const DefaultInterval = 5 * time.Minute

// Sweeper deletes sessions not updated within a TTL.
type Sweeper struct {
	repo     store.SessionRepository
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Sweeper. A non-positive interval uses DefaultInterval.
func New(repo store.SessionRepository, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{repo: repo, ttl: ttl, interval: interval, logger: logger}
}

// Start runs the sweep loop in a goroutine until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("Session sweeper started", "interval", s.interval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				s.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one pass and returns how many sessions were removed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete stale sessions", 3, 100*time.Millisecond, func(ctx context.Context) error {
		n, err := s.repo.DeleteStaleSessions(ctx, s.ttl)
		if err != nil {
			return err
		}
		deleted = n
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("Session sweep interrupted", "error", err)
			return 0
		}
		s.logger.Error("Session sweep failed", "error", err)
		return 0
	}
	if deleted > 0 {
		s.logger.Info("Session sweeper removed idle sessions", "count", deleted)
	}
	return deleted
}
