package interview

import (
	"context"
	"time"

	"github.com/ashureev/techtree/internal/domain"
)

// ClassifyInput is what the classifier sees of a turn.
type ClassifyInput struct {
	Message        string
	Topic          string
	ActiveQuestion string
}

// Classification is a classifier's raw answer. Intent is validated by the
// Router before use.
type Classification struct {
	Intent    string
	Topic     string
	Reasoning string
}

// Classifier labels a user message.
type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (Classification, error)
}

// QuestionRequest asks for count questions on one subject and topic.
type QuestionRequest struct {
	Subject    string
	Topic      string
	Difficulty string
	Count      int
}

// QuestionBank produces interview questions. It may return fewer than
// requested, including none.
type QuestionBank interface {
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]domain.Question, error)
}

// Evaluator grades answers and analyzes finished sessions.
type Evaluator interface {
	EvaluateAnswer(ctx context.Context, q domain.Question, answer string) (domain.Verdict, error)
	AnalyzeSession(ctx context.Context, log []domain.Message) (domain.Report, error)
}

// FeedbackComposer turns a verdict into a message for the candidate.
type FeedbackComposer interface {
	ComposeFeedback(ctx context.Context, q domain.Question, answer string, v domain.Verdict) (string, error)
}

// ConsultInput is the context for a free-form consultation reply.
type ConsultInput struct {
	Message string
	Track   string
	Topic   string
}

// Consultant answers messages that are not part of the question loop.
type Consultant interface {
	Recommend(ctx context.Context, in ConsultInput) (string, error)
}

// ReportFormatter renders a report for display.
type ReportFormatter interface {
	FormatReport(ctx context.Context, r domain.Report) (string, error)
}

// ProgressRecorder applies a graded answer to the user's skill tree.
// PreviewResult reports whether RecordResult would grant a star and must not
// write.
type ProgressRecorder interface {
	PreviewResult(ctx context.Context, userID, subject string, passed bool, score int) (bool, error)
	RecordResult(ctx context.Context, userID, subject string, passed bool, score int) (bool, error)
}

// Recorder receives turn telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveTurn(intent string, d time.Duration)
	IncFallback(kind string)
	IncCollaboratorFailure(collaborator string)
	IncQuestionsDelivered()
	IncSessionsCompleted()
}

type nopRecorder struct{}

func (nopRecorder) ObserveTurn(string, time.Duration) {}
func (nopRecorder) IncFallback(string)                {}
func (nopRecorder) IncCollaboratorFailure(string)     {}
func (nopRecorder) IncQuestionsDelivered()            {}
func (nopRecorder) IncSessionsCompleted()             {}
