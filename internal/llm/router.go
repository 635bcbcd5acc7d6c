package llm

import (
	"context"
	"fmt"

	"github.com/ashureev/techtree/internal/interview"
)

const routerSystemPrompt = `You are the router of an AI interviewer.
Decide what the candidate wants from their latest message.

[Context]
- Current topic: %s
- Last question: %s

[Intents]
- ANSWER: an attempt to answer the question, even a wrong or short one, "I don't know", or code.
- NEXT_QUESTION: skip or ask for another question ("next", "pass", "start").
- CHANGE_TOPIC: explicitly switch subject ("let's do Java"). Put the new topic in "topic".
- CONSULT: general questions, study advice or small talk.
- QUIT: end the session ("stop", "bye").

Respond with ONLY this JSON:
{"intent": "ANSWER|NEXT_QUESTION|CHANGE_TOPIC|CONSULT|QUIT", "topic": string or null, "reasoning": "short reason"}`

// RouterAgent classifies candidate messages.
type RouterAgent struct {
	client *Client
}

var _ interview.Classifier = (*RouterAgent)(nil)

// NewRouterAgent creates a classifier backed by client.
func NewRouterAgent(client *Client) *RouterAgent {
	return &RouterAgent{client: client}
}

type routerAnswer struct {
	Intent    string  `json:"intent"`
	Topic     *string `json:"topic"`
	Reasoning string  `json:"reasoning"`
}

// Classify implements interview.Classifier.
func (a *RouterAgent) Classify(ctx context.Context, in interview.ClassifyInput) (interview.Classification, error) {
	last := in.ActiveQuestion
	if last == "" {
		last = "(none)"
	}
	var ans routerAnswer
	err := a.client.CompleteJSON(ctx, Request{
		Op:     "classify",
		System: fmt.Sprintf(routerSystemPrompt, in.Topic, last),
		User:   in.Message,
	}, routerSchema, &ans)
	if err != nil {
		return interview.Classification{}, err
	}
	c := interview.Classification{Intent: ans.Intent, Reasoning: ans.Reasoning}
	if ans.Topic != nil {
		c.Topic = *ans.Topic
	}
	return c, nil
}
