package domain

import (
	"time"
)

// Speaker identifies who produced a message.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerSystem Speaker = "system"
)

// MessageKind classifies system output so clients can render it.
type MessageKind string

const (
	KindChat     MessageKind = "chat"
	KindQuestion MessageKind = "question"
	KindFeedback MessageKind = "feedback"
	KindReport   MessageKind = "report"
	KindApology  MessageKind = "apology"
	KindConsult  MessageKind = "consult"
)

// Message is one entry of the append-only session log.
type Message struct {
	Speaker Speaker     `json:"speaker"`
	Kind    MessageKind `json:"kind"`
	Text    string      `json:"text"`
	At      time.Time   `json:"at"`
}

// AnsweredQuestion pairs a delivered question with the answer it received.
type AnsweredQuestion struct {
	Question   Question  `json:"question"`
	Answer     string    `json:"answer"`
	Verdict    Verdict   `json:"verdict"`
	AnsweredAt time.Time `json:"answered_at"`
}

// SessionDefaults configures sessions created lazily on first contact.
type SessionDefaults struct {
	Track        string
	Topic        string
	Difficulty   string
	MaxQuestions int
}

// Session is one interview conversation and all state threaded through it.
type Session struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	Track          string             `json:"track"`
	Topic          string             `json:"topic"`
	Difficulty     string             `json:"difficulty"`
	Messages       []Message          `json:"messages"`
	Queue          []Question         `json:"queue"`
	Active         *Question          `json:"active,omitempty"`
	LastVerdict    *Verdict           `json:"last_verdict,omitempty"`
	Answered       []AnsweredQuestion `json:"answered"`
	QuestionsAsked int                `json:"questions_asked"`
	MaxQuestions   int                `json:"max_questions"`
	Completed      bool               `json:"completed"`
	Report         *Report            `json:"report,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewSession builds a fresh session from defaults.
func NewSession(id, userID string, d SessionDefaults, now time.Time) *Session {
	maxQ := d.MaxQuestions
	if maxQ < 1 {
		maxQ = 1
	}
	return &Session{
		ID:           id,
		UserID:       userID,
		Track:        d.Track,
		Topic:        d.Topic,
		Difficulty:   d.Difficulty,
		Messages:     []Message{},
		Queue:        []Question{},
		Answered:     []AnsweredQuestion{},
		MaxQuestions: maxQ,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Append adds one message to the log.
func (s *Session) Append(speaker Speaker, kind MessageKind, text string, at time.Time) Message {
	m := Message{Speaker: speaker, Kind: kind, Text: text, At: at}
	s.Messages = append(s.Messages, m)
	return m
}

// AwaitingAnswer reports whether a delivered question is still open.
func (s *Session) AwaitingAnswer() bool {
	return s.Active != nil
}

// LastOutbound returns the most recent system message, if any.
func (s *Session) LastOutbound() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Speaker == SpeakerSystem {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// Started reports whether any turn has been processed.
func (s *Session) Started() bool {
	return len(s.Messages) > 0
}

// AverageScore is the mean verdict score over answered questions.
func (s *Session) AverageScore() int {
	if len(s.Answered) == 0 {
		return 0
	}
	total := 0
	for _, a := range s.Answered {
		total += a.Verdict.Score
	}
	return total / len(s.Answered)
}

// Clone returns a deep copy so a turn can work on it without aliasing the
// stored record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	c.Queue = make([]Question, len(s.Queue))
	for i, q := range s.Queue {
		c.Queue[i] = q.clone()
	}
	c.Answered = make([]AnsweredQuestion, len(s.Answered))
	for i, a := range s.Answered {
		a.Question = a.Question.clone()
		a.Verdict = a.Verdict.clone()
		c.Answered[i] = a
	}
	if s.Active != nil {
		q := s.Active.clone()
		c.Active = &q
	}
	if s.LastVerdict != nil {
		v := s.LastVerdict.clone()
		c.LastVerdict = &v
	}
	if s.Report != nil {
		r := s.Report.clone()
		c.Report = &r
	}
	return &c
}
