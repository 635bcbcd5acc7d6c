package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/interview"
)

const questionSystemPrompt = `You write technical interview questions.
Write %d high quality question(s) for the requested subject, topic and difficulty.

[Rules]
1. Each question covers a different concept or angle. No duplicates.
2. Questions are practical and go beyond definitions.
3. The model answer states the core idea with an example.
4. List 3 to 5 short evaluation criteria a grader can check at a glance.

Respond with ONLY this JSON:
{"questions": [{"skill": "", "topic": "", "level": "", "question_text": "", "model_answer": "", "evaluation_criteria": [""]}]}`

// QuestionMaker generates interview questions.
type QuestionMaker struct {
	client *Client
}

var _ interview.QuestionBank = (*QuestionMaker)(nil)

// NewQuestionMaker creates a question bank backed by client.
func NewQuestionMaker(client *Client) *QuestionMaker {
	return &QuestionMaker{client: client}
}

type generatedQuestion struct {
	Skill    string   `json:"skill"`
	Topic    string   `json:"topic"`
	Level    string   `json:"level"`
	Text     string   `json:"question_text"`
	Answer   string   `json:"model_answer"`
	Criteria []string `json:"evaluation_criteria"`
}

type questionList struct {
	Questions []generatedQuestion `json:"questions"`
}

// GenerateQuestions implements interview.QuestionBank. The request's
// subject, topic and difficulty win over whatever the model echoes back.
func (m *QuestionMaker) GenerateQuestions(ctx context.Context, req interview.QuestionRequest) ([]domain.Question, error) {
	count := req.Count
	if count < 1 {
		count = 1
	}
	user := fmt.Sprintf("[Request]\n- Subject: %s\n- Topic: %s\n- Difficulty: %s\n- Count: %d",
		req.Subject, req.Topic, req.Difficulty, count)

	var list questionList
	err := m.client.CompleteJSON(ctx, Request{
		Op:          "generate questions",
		System:      fmt.Sprintf(questionSystemPrompt, count),
		User:        user,
		Temperature: 0.7,
	}, questionsSchema, &list)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Question, 0, len(list.Questions))
	for _, g := range list.Questions {
		text := strings.TrimSpace(g.Text)
		if text == "" {
			continue
		}
		out = append(out, domain.Question{
			Subject:     firstNonEmpty(req.Subject, g.Skill),
			Topic:       firstNonEmpty(req.Topic, g.Topic),
			Difficulty:  firstNonEmpty(req.Difficulty, g.Level),
			Text:        text,
			ModelAnswer: strings.TrimSpace(g.Answer),
			Criteria:    g.Criteria,
		})
		if len(out) == count {
			break
		}
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
