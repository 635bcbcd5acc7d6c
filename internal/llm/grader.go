package llm

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/interview"
)

const evaluateSystemPrompt = `You are a senior engineer interviewing a candidate.
Grade the candidate's answer to the question on a 0 to 100 scale.

[What matters]
1. Technical accuracy (most important)
2. Clear reasoning
3. Concrete examples

Be strict. Respond with ONLY this JSON:
{"score": 0, "is_passed": false, "reason": "why this score", "feedback": "advice for the candidate", "better_answer": "improved answer or null"}`

const analyzeSystemPrompt = `You are the final assessor of a technical interview.
Read the whole transcript and judge the candidate.

1. Estimate a tier (Junior, Middle or Senior) from the depth and consistency of the answers.
2. Separate strengths from weaknesses clearly.
3. Score strictly and objectively.

Respond with ONLY this JSON:
{"total_score": 0, "tier_level": "", "strengths": [""], "weaknesses": [""], "study_guide": ""}`

// Grader grades answers and whole sessions.
type Grader struct {
	client *Client
}

var _ interview.Evaluator = (*Grader)(nil)

// NewGrader creates an evaluator backed by client.
func NewGrader(client *Client) *Grader {
	return &Grader{client: client}
}

type evaluation struct {
	Score        float64 `json:"score"`
	IsPassed     bool    `json:"is_passed"`
	Reason       string  `json:"reason"`
	Feedback     string  `json:"feedback"`
	BetterAnswer *string `json:"better_answer"`
}

// EvaluateAnswer implements interview.Evaluator. The model's is_passed is
// discarded; NewVerdict derives it from the score.
func (g *Grader) EvaluateAnswer(ctx context.Context, q domain.Question, answer string) (domain.Verdict, error) {
	criteria := "none"
	if len(q.Criteria) > 0 {
		criteria = strings.Join(q.Criteria, ", ")
	}
	user := fmt.Sprintf("[Question]: %s\n[Model answer]: %s\n[Criteria]: %s\n[Candidate answer]: %s",
		q.Text, firstNonEmpty(q.ModelAnswer, "N/A"), criteria, answer)

	var ev evaluation
	if err := g.client.CompleteJSON(ctx, Request{
		Op:     "evaluate answer",
		System: evaluateSystemPrompt,
		User:   user,
	}, evaluationSchema, &ev); err != nil {
		return domain.Verdict{}, err
	}

	better := ""
	if ev.BetterAnswer != nil {
		better = *ev.BetterAnswer
	}
	return domain.NewVerdict(clampScore(ev.Score), ev.Reason, ev.Feedback, better), nil
}

type analysis struct {
	TotalScore float64  `json:"total_score"`
	Tier       string   `json:"tier_level"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	StudyGuide string   `json:"study_guide"`
}

// AnalyzeSession implements interview.Evaluator.
func (g *Grader) AnalyzeSession(ctx context.Context, log []domain.Message) (domain.Report, error) {
	var a analysis
	if err := g.client.CompleteJSON(ctx, Request{
		Op:     "analyze session",
		System: analyzeSystemPrompt,
		User:   "[Transcript]\n" + Transcript(log),
	}, reportSchema, &a); err != nil {
		return domain.Report{}, err
	}

	return domain.Report{
		TotalScore: clampScore(a.TotalScore),
		Tier:       firstNonEmpty(a.Tier, "Unknown"),
		Strengths:  nonNil(a.Strengths),
		Weaknesses: nonNil(a.Weaknesses),
		StudyGuide: strings.TrimSpace(a.StudyGuide),
	}, nil
}

// clampScore bounds a model score to 0..100 before converting it, so huge
// values cannot overflow the int conversion.
func clampScore(f float64) int {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 100:
		return 100
	}
	return int(math.Round(f))
}

// Transcript renders a session log as "speaker: text" lines.
func Transcript(log []domain.Message) string {
	var b strings.Builder
	for _, m := range log {
		fmt.Fprintf(&b, "%s: %s\n", m.Speaker, m.Text)
	}
	return b.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
