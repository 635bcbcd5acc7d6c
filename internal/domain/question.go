package domain

import "strings"

// PassThreshold is the minimum score that counts as a pass.
const PassThreshold = 70

// Question is one interview question with its grading material.
type Question struct {
	Subject     string   `json:"subject"`
	Topic       string   `json:"topic"`
	Difficulty  string   `json:"difficulty"`
	Text        string   `json:"text"`
	ModelAnswer string   `json:"model_answer"`
	Criteria    []string `json:"criteria"`
}

func (q Question) clone() Question {
	q.Criteria = append([]string(nil), q.Criteria...)
	return q
}

// Verdict is the graded outcome of one answer.
type Verdict struct {
	Score        int     `json:"score"`
	Passed       bool    `json:"passed"`
	Rationale    string  `json:"rationale"`
	Feedback     string  `json:"feedback"`
	BetterAnswer *string `json:"better_answer,omitempty"`
	// Degraded marks a substitute verdict produced when grading failed.
	Degraded bool `json:"degraded,omitempty"`
}

// NewVerdict clamps score into 0..100 and derives Passed from it. Whatever
// pass flag an evaluator claims is ignored.
func NewVerdict(score int, rationale, feedback, betterAnswer string) Verdict {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	v := Verdict{
		Score:     score,
		Passed:    score >= PassThreshold,
		Rationale: rationale,
		Feedback:  feedback,
	}
	if b := strings.TrimSpace(betterAnswer); b != "" {
		v.BetterAnswer = &b
	}
	return v
}

// DegradedVerdict is the zero-score failing verdict used when an answer
// could not be graded.
func DegradedVerdict(reason string) Verdict {
	v := NewVerdict(0, reason, "We could not evaluate this answer.", "")
	v.Degraded = true
	return v
}

func (v Verdict) clone() Verdict {
	if v.BetterAnswer != nil {
		b := *v.BetterAnswer
		v.BetterAnswer = &b
	}
	return v
}

// Report is the aggregate analysis of a finished session.
type Report struct {
	TotalScore int      `json:"total_score"`
	Tier       string   `json:"tier"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	StudyGuide string   `json:"study_guide"`
}

// FallbackReport is used when session analysis fails.
func FallbackReport(totalScore int) Report {
	return Report{
		TotalScore: totalScore,
		Tier:       "Unknown",
		Strengths:  []string{},
		Weaknesses: []string{},
		StudyGuide: "A study guide could not be generated for this session.",
	}
}

func (r Report) clone() Report {
	r.Strengths = append([]string(nil), r.Strengths...)
	r.Weaknesses = append([]string(nil), r.Weaknesses...)
	return r
}
