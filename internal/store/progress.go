package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/ashureev/techtree/internal/domain"
)

const progressLockStripes = 64

// ProgressService applies graded answers to a user's skill tree. Updates
// for one user are serialized within the process.
type ProgressService struct {
	repo  Repository
	now   func() time.Time
	locks [progressLockStripes]sync.Mutex
}

// NewProgressService creates a ProgressService over repo.
func NewProgressService(repo Repository) *ProgressService {
	return &ProgressService{repo: repo, now: time.Now}
}

func (p *ProgressService) lockUser(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &p.locks[h.Sum32()%progressLockStripes]
	mu.Lock()
	return mu.Unlock
}

// PreviewResult reports whether RecordResult would grant a star, without
// writing anything.
func (p *ProgressService) PreviewResult(ctx context.Context, userID, subject string, passed bool, score int) (bool, error) {
	if userID == "" || subject == "" {
		return false, ErrInvalidID
	}
	progress, err := p.repo.GetSkillProgress(ctx, userID, subject)
	if err != nil {
		return false, fmt.Errorf("get skill progress: %w", err)
	}
	if progress == nil {
		progress = domain.NewSkillProgress(userID, subject)
	}
	return progress.Record(passed, score, p.now()), nil
}

// RecordResult updates the subject's stars and level and reports whether a
// star was gained. The user's star total is bumped alongside.
func (p *ProgressService) RecordResult(ctx context.Context, userID, subject string, passed bool, score int) (bool, error) {
	if userID == "" || subject == "" {
		return false, ErrInvalidID
	}
	defer p.lockUser(userID)()

	progress, err := p.repo.GetSkillProgress(ctx, userID, subject)
	if err != nil {
		return false, fmt.Errorf("get skill progress: %w", err)
	}
	if progress == nil {
		progress = domain.NewSkillProgress(userID, subject)
	}

	now := p.now()
	gained := progress.Record(passed, score, now)
	if err := p.repo.UpsertSkillProgress(ctx, progress); err != nil {
		return false, fmt.Errorf("save skill progress: %w", err)
	}
	if !gained {
		return false, nil
	}

	user, err := p.repo.GetUser(ctx, userID)
	if err != nil {
		return true, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		user = &domain.User{UserID: userID, Nickname: GuestNickname(userID), CreatedAt: now}
	}
	user.TotalStars++
	user.UpdatedAt = now
	if err := p.repo.UpsertUser(ctx, user); err != nil {
		return true, fmt.Errorf("save user stars: %w", err)
	}
	return true, nil
}

// GuestNickname derives a display name for an anonymous user.
func GuestNickname(userID string) string {
	if len(userID) > 13 {
		return "guest-" + userID[len(userID)-8:]
	}
	return "guest"
}

// EnsureUser creates a guest record for userID if none exists.
func EnsureUser(ctx context.Context, repo Repository, userID string) (*domain.User, error) {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now()
	user = &domain.User{
		UserID:    userID,
		Nickname:  GuestNickname(userID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
