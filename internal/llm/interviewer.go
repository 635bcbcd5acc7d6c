package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashureev/techtree/internal/curriculum"
	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/interview"
)

const feedbackSystemPrompt = `You are a friendly, professional technical interviewer.
Write a short spoken reply to the candidate based on the grading below.

[Grading]
- Question: %s
- Candidate answer: %s
- Score: %d
- Passed: %t
- Grader notes: %s

[Guide]
1. Polite and warm tone.
2. Score 70 or more: praise and restate the key idea. Below 70: point out the gap gently and encourage.
3. If the answer did not pass or was incomplete, add exactly ONE follow-up question that probes the gap.
   If it was already complete, say you will move on.`

const reportFormatPrompt = `You write the final report of a technical interview.
Turn the analysis data into a clean, readable Markdown report with a formal tone.`

const recommendSystemPrompt = `You are the guide of a technical interview practice service.
Recommend the best track or tier from the curriculum for what the candidate asks about.

[Curriculum]
%s

[Guide]
1. If the candidate names no topic, introduce the tracks briefly and ask them to choose.
2. If they show an interest ("backend", "AI"), suggest the matching track and its tiers.
3. If the topic is already clear, ask "Shall we start the interview on <topic>?".
The current session is on %s / %s.`

// Interviewer writes the candidate-facing text: feedback, consultation
// replies and the final report.
type Interviewer struct {
	client *Client
	tree   *curriculum.Tree
}

var (
	_ interview.FeedbackComposer = (*Interviewer)(nil)
	_ interview.Consultant       = (*Interviewer)(nil)
	_ interview.ReportFormatter  = (*Interviewer)(nil)
)

// NewInterviewer creates an Interviewer. tree may be nil, in which case
// consultation replies get no curriculum context.
func NewInterviewer(client *Client, tree *curriculum.Tree) *Interviewer {
	return &Interviewer{client: client, tree: tree}
}

// ComposeFeedback implements interview.FeedbackComposer.
func (iv *Interviewer) ComposeFeedback(ctx context.Context, q domain.Question, answer string, v domain.Verdict) (string, error) {
	return iv.client.Complete(ctx, Request{
		Op:          "compose feedback",
		System:      fmt.Sprintf(feedbackSystemPrompt, q.Text, answer, v.Score, v.Passed, v.Feedback),
		User:        "Write the interviewer's reply.",
		Temperature: 0.7,
	})
}

// Recommend implements interview.Consultant.
func (iv *Interviewer) Recommend(ctx context.Context, in interview.ConsultInput) (string, error) {
	return iv.client.Complete(ctx, Request{
		Op:          "recommend topic",
		System:      fmt.Sprintf(recommendSystemPrompt, iv.curriculumContext(in.Track), in.Track, in.Topic),
		User:        in.Message,
		Temperature: 0.7,
	})
}

func (iv *Interviewer) curriculumContext(track string) string {
	if iv.tree == nil {
		return "(not available)"
	}
	ctx := iv.tree.Context("", "")
	if _, ok := iv.tree.FindTrack(track); ok {
		ctx += "\n\n" + iv.tree.Context(track, "")
	}
	return ctx
}

// FormatReport implements interview.ReportFormatter.
func (iv *Interviewer) FormatReport(ctx context.Context, r domain.Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return iv.client.Complete(ctx, Request{
		Op:     "format report",
		System: reportFormatPrompt,
		User:   "[Analysis data]\n" + string(data),
	})
}
