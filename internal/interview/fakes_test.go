package interview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/store"
)

type fakeClassifier struct {
	mu    sync.Mutex
	fn    func(ClassifyInput) (Classification, error)
	calls []ClassifyInput
}

func (f *fakeClassifier) Classify(_ context.Context, in ClassifyInput) (Classification, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	return f.fn(in)
}

// keywordClassifier mimics a model with a few fixed phrases.
func keywordClassifier() *fakeClassifier {
	return &fakeClassifier{fn: func(in ClassifyInput) (Classification, error) {
		msg := strings.ToLower(in.Message)
		switch {
		case msg == "hi" || strings.Contains(msg, "what should i study"):
			return Classification{Intent: "CONSULT"}, nil
		case msg == "next" || msg == "start":
			return Classification{Intent: "NEXT_QUESTION"}, nil
		case strings.HasPrefix(msg, "let's switch to "):
			return Classification{Intent: "CHANGE_TOPIC", Topic: strings.TrimPrefix(in.Message, "let's switch to ")}, nil
		case msg == "bye":
			return Classification{Intent: "QUIT"}, nil
		default:
			return Classification{Intent: "ANSWER"}, nil
		}
	}}
}

type fakeBank struct {
	mu    sync.Mutex
	fn    func(QuestionRequest) ([]domain.Question, error)
	calls []QuestionRequest
}

func (f *fakeBank) GenerateQuestions(_ context.Context, req QuestionRequest) ([]domain.Question, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(req)
	}
	qs := make([]domain.Question, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		qs = append(qs, domain.Question{
			Subject:     req.Subject,
			Topic:       req.Topic,
			Difficulty:  req.Difficulty,
			Text:        req.Topic + " question " + string(rune('A'+n-1+i)),
			ModelAnswer: "model",
			Criteria:    []string{"accuracy"},
		})
	}
	return qs, nil
}

func (f *fakeBank) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEvaluator struct {
	score       int
	claimPassed bool
	evalErr     error
	analyzeErr  error
	evalCalls   int
	analyzed    [][]domain.Message
}

func (f *fakeEvaluator) EvaluateAnswer(_ context.Context, _ domain.Question, _ string) (domain.Verdict, error) {
	f.evalCalls++
	if f.evalErr != nil {
		return domain.Verdict{}, f.evalErr
	}
	return domain.Verdict{Score: f.score, Passed: f.claimPassed, Rationale: "graded", Feedback: "good points"}, nil
}

func (f *fakeEvaluator) AnalyzeSession(_ context.Context, log []domain.Message) (domain.Report, error) {
	f.analyzed = append(f.analyzed, log)
	if f.analyzeErr != nil {
		return domain.Report{}, f.analyzeErr
	}
	return domain.Report{TotalScore: 88, Tier: "Senior", Strengths: []string{"clarity"}, StudyGuide: "keep going"}, nil
}

type fakeFeedback struct{ err error }

func (f fakeFeedback) ComposeFeedback(_ context.Context, _ domain.Question, _ string, v domain.Verdict) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if v.Passed {
		return "Nice answer!", nil
	}
	return "Not quite. Can you say more about the tradeoffs?", nil
}

type fakeConsultant struct{ err error }

func (f fakeConsultant) Recommend(_ context.Context, in ConsultInput) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "You could start with " + in.Track + ".", nil
}

type fakeReports struct{ err error }

func (f fakeReports) FormatReport(_ context.Context, r domain.Report) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "REPORT tier=" + r.Tier, nil
}

type fakeProgress struct {
	gained   bool
	err      error
	previews int
	calls    int
}

func (f *fakeProgress) PreviewResult(context.Context, string, string, bool, int) (bool, error) {
	f.previews++
	return f.gained, f.err
}

func (f *fakeProgress) RecordResult(context.Context, string, string, bool, int) (bool, error) {
	f.calls++
	return f.gained, f.err
}

// flakySessions fails the next UpsertSession once armed.
type flakySessions struct {
	*store.MemoryStore
	mu       sync.Mutex
	failNext bool
}

func (f *flakySessions) arm() {
	f.mu.Lock()
	f.failNext = true
	f.mu.Unlock()
}

func (f *flakySessions) UpsertSession(ctx context.Context, sess *domain.Session) error {
	f.mu.Lock()
	fail := f.failNext
	f.failNext = false
	f.mu.Unlock()
	if fail {
		return errBoom
	}
	return f.MemoryStore.UpsertSession(ctx, sess)
}

type harness struct {
	orch       *Orchestrator
	repo       *store.MemoryStore
	classifier *fakeClassifier
	bank       *fakeBank
	eval       *fakeEvaluator
	progress   *fakeProgress
}

type harnessOption func(*Deps, *Options)

func withAutoAdvance(v bool) harnessOption {
	return func(_ *Deps, o *Options) { o.AutoAdvance = v }
}

func withMaxQuestions(n int) harnessOption {
	return func(d *Deps, _ *Options) {
		def := d.Sessions.Defaults()
		def.MaxQuestions = n
		d.Sessions.defaults = def
	}
}

func withSessionRepo(repo store.SessionRepository) harnessOption {
	return func(d *Deps, _ *Options) {
		d.Sessions = NewSessions(repo, d.Sessions.Defaults())
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		repo:       store.NewMemory(),
		classifier: keywordClassifier(),
		bank:       &fakeBank{},
		eval:       &fakeEvaluator{score: 85},
		progress:   &fakeProgress{},
	}
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	deps := Deps{
		Sessions:   NewSessions(h.repo, domain.SessionDefaults{}),
		Classifier: h.classifier,
		Questions:  h.bank,
		Evaluator:  h.eval,
		Feedback:   fakeFeedback{},
		Consultant: fakeConsultant{},
		Reports:    fakeReports{},
		Progress:   h.progress,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&deps, &options)
	}

	orch, err := New(deps, options)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) send(t *testing.T, sessionID, text string) *TurnResult {
	t.Helper()
	res, err := h.orch.HandleTurn(context.Background(), TurnInput{SessionID: sessionID, UserID: "anon_1", Text: text})
	if err != nil {
		t.Fatalf("HandleTurn(%q) failed: %v", text, err)
	}
	return res
}

var errBoom = errors.New("boom")
