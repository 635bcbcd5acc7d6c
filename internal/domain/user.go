// Package domain contains core domain types for the interview service.
package domain

import (
	"time"
)

// MaxSkillLevel is the highest mastery level a subject can reach.
const MaxSkillLevel = 3

// starsPerLevel is how many stars at the current level unlock the next one.
const starsPerLevel = 3

// User represents a candidate. Anonymous guests are created on first contact.
type User struct {
	UserID     string    `json:"user_id"`
	Nickname   string    `json:"nickname"`
	TotalStars int       `json:"total_stars"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SkillProgress tracks mastery of one subject for one user.
type SkillProgress struct {
	UserID       string    `json:"user_id"`
	Subject      string    `json:"subject"`
	Level        int       `json:"level"`
	Stars        int       `json:"stars"`
	LastTestedAt time.Time `json:"last_tested_at"`
}

// NewSkillProgress returns a level-one record with no stars.
func NewSkillProgress(userID, subject string) *SkillProgress {
	return &SkillProgress{
		UserID:  userID,
		Subject: subject,
		Level:   1,
	}
}

// Record applies one graded answer. A star is granted only for a passing
// answer at or above the pass threshold. Three stars promote the subject one
// level and reset the count, up to MaxSkillLevel.
func (p *SkillProgress) Record(passed bool, score int, at time.Time) bool {
	p.LastTestedAt = at
	if p.Level < 1 {
		p.Level = 1
	}
	if !passed || score < PassThreshold {
		return false
	}

	p.Stars++
	if p.Stars >= starsPerLevel && p.Level < MaxSkillLevel {
		p.Level++
		p.Stars = 0
	}
	return true
}
