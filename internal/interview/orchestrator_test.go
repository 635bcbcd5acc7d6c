package interview

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/store"
)

func statesEqual(got []State, want ...State) bool {
	return reflect.DeepEqual(got, want)
}

func TestScenarioFreshSessionConsults(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	res := h.send(t, "s1", "hi")

	if res.Intent != IntentConsult {
		t.Fatalf("expected CONSULT, got %s", res.Intent)
	}
	if len(res.Replies) != 1 || res.Replies[0].Kind != domain.KindConsult || res.Replies[0].Text == "" {
		t.Fatalf("expected one non-empty consult reply, got %+v", res.Replies)
	}
	if !statesEqual(res.States, StateLoading, StateRouting, StateConsulting, StateRouting) {
		t.Fatalf("unexpected states: %v", res.States)
	}

	s := res.Session
	if s.Active != nil || s.QuestionsAsked != 0 || len(s.Queue) != 0 || s.Completed {
		t.Fatalf("consult must only append messages, got %+v", s)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages))
	}
	if h.bank.callCount() != 0 || h.eval.evalCalls != 0 {
		t.Fatal("consult should not call the question bank or evaluator")
	}
}

func TestScenarioSingleQuestionCompletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withMaxQuestions(1))
	first := h.send(t, "s1", "start")
	if first.Session.Active == nil {
		t.Fatal("expected an active question after start")
	}

	res := h.send(t, "s1", "A closure captures variables from its enclosing scope.")
	if !statesEqual(res.States, StateLoading, StateRouting, StateEvaluating, StateFeedingBack, StateReporting, StateTerminated) {
		t.Fatalf("unexpected states: %v", res.States)
	}
	if h.eval.evalCalls != 1 {
		t.Fatalf("expected one evaluation, got %d", h.eval.evalCalls)
	}

	s := res.Session
	if s.QuestionsAsked != 1 || !s.Completed || s.Report == nil {
		t.Fatalf("expected completed session with report, got asked=%d completed=%v", s.QuestionsAsked, s.Completed)
	}
	if len(res.Replies) != 2 || res.Replies[0].Kind != domain.KindFeedback || res.Replies[1].Kind != domain.KindReport {
		t.Fatalf("expected feedback then report, got %+v", res.Replies)
	}
	if res.Replies[1].Text != "REPORT tier=Senior" {
		t.Fatalf("unexpected report text %q", res.Replies[1].Text)
	}
	if len(h.eval.analyzed) != 1 || len(h.eval.analyzed[0]) != len(s.Messages)-1 {
		t.Fatal("analysis should see the full log up to the report")
	}
}

func TestScenarioEmptyQuestionBankApologizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.bank.fn = func(QuestionRequest) ([]domain.Question, error) { return nil, nil }

	res := h.send(t, "s1", "next")
	if len(res.Replies) != 1 || res.Replies[0].Kind != domain.KindApology {
		t.Fatalf("expected a single apology, got %+v", res.Replies)
	}
	if res.Session.Active != nil || res.Session.QuestionsAsked != 0 {
		t.Fatalf("apology must leave no active question and no increment: %+v", res.Session)
	}
	if !statesEqual(res.States, StateLoading, StateRouting, StateGenerating, StateRouting) {
		t.Fatalf("unexpected states: %v", res.States)
	}
}

func TestQuestionBankErrorApologizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.bank.fn = func(QuestionRequest) ([]domain.Question, error) { return nil, errBoom }

	res := h.send(t, "s1", "next")
	if res.Replies[0].Kind != domain.KindApology {
		t.Fatalf("expected apology, got %+v", res.Replies)
	}
}

func TestScenarioChangeTopicClearsQueue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(_ *Deps, o *Options) { o.BatchSize = 3 })
	first := h.send(t, "s1", "start")
	if len(first.Session.Queue) != 2 {
		t.Fatalf("expected 2 queued questions, got %d", len(first.Session.Queue))
	}

	res := h.send(t, "s1", "let's switch to Java")
	if res.Intent != IntentChangeTopic {
		t.Fatalf("expected CHANGE_TOPIC, got %s", res.Intent)
	}
	s := res.Session
	if s.Topic != "Java" {
		t.Fatalf("topic not updated: %q", s.Topic)
	}
	if s.Active == nil || s.Active.Topic != "Java" {
		t.Fatalf("expected a fresh Java question, got %+v", s.Active)
	}
	for _, q := range s.Queue {
		if q.Topic != "Java" {
			t.Fatalf("stale question left in queue: %+v", q)
		}
	}
	if last := h.bank.calls[len(h.bank.calls)-1]; last.Topic != "Java" || last.Count != 3 {
		t.Fatalf("unexpected refill request: %+v", last)
	}
	if s.QuestionsAsked != 0 {
		t.Fatalf("topic change must not count as a question, got %d", s.QuestionsAsked)
	}
}

func TestChangeTopicWithoutTopicKeepsTopic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.classifier.fn = func(ClassifyInput) (Classification, error) {
		return Classification{Intent: "CHANGE_TOPIC"}, nil
	}
	res := h.send(t, "s1", "something else please")
	if res.Session.Topic != DefaultTopic {
		t.Fatalf("topic should stay %q, got %q", DefaultTopic, res.Session.Topic)
	}
	if res.Session.Active == nil {
		t.Fatal("expected a question to be delivered")
	}
}

func TestScenarioEvaluatorErrorDegrades(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(t, "s1", "start")
	h.eval.evalErr = errBoom

	res := h.send(t, "s1", "my answer")
	v := res.Session.LastVerdict
	if v == nil || v.Score != 0 || v.Passed || !v.Degraded {
		t.Fatalf("expected degraded zero verdict, got %+v", v)
	}
	if !strings.Contains(res.Replies[0].Text, "couldn't evaluate") {
		t.Fatalf("expected could-not-evaluate feedback, got %q", res.Replies[0].Text)
	}
	if res.Session.QuestionsAsked != 1 {
		t.Fatalf("degraded evaluation still counts, got %d", res.Session.QuestionsAsked)
	}
	if h.progress.calls != 0 {
		t.Fatal("degraded verdicts must not touch skill progress")
	}
	if res.Session.Active == nil {
		t.Fatal("auto-advance should have delivered the next question")
	}
}

func TestPassedIsRecomputedFromScore(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.eval.score = 40
	h.eval.claimPassed = true
	h.send(t, "s1", "start")

	res := h.send(t, "s1", "answer")
	if res.Session.LastVerdict.Passed {
		t.Fatal("score 40 must not pass regardless of evaluator claim")
	}
	if got := res.Session.Answered[0].Verdict; got.Passed != (got.Score >= domain.PassThreshold) {
		t.Fatalf("threshold law violated: %+v", got)
	}
}

func TestAutoAdvanceChainsNextQuestion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(t, "s1", "start")
	res := h.send(t, "s1", "answer")

	if !statesEqual(res.States, StateLoading, StateRouting, StateEvaluating, StateFeedingBack, StateGenerating, StateRouting) {
		t.Fatalf("unexpected states: %v", res.States)
	}
	if len(res.Replies) != 2 || res.Replies[1].Kind != domain.KindQuestion {
		t.Fatalf("expected feedback then question, got %+v", res.Replies)
	}
}

func TestWaitForNextWhenAutoAdvanceOff(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withAutoAdvance(false))
	h.send(t, "s1", "start")
	res := h.send(t, "s1", "answer")

	if !statesEqual(res.States, StateLoading, StateRouting, StateEvaluating, StateFeedingBack, StateRouting) {
		t.Fatalf("unexpected states: %v", res.States)
	}
	if res.Session.Active != nil {
		t.Fatal("no question should be open after feedback")
	}

	next := h.send(t, "s1", "next")
	if next.Session.Active == nil {
		t.Fatal("explicit next should deliver a question")
	}
}

func TestAnswerWithoutQuestionGenerates(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	res := h.send(t, "s1", "the answer is 42")
	if res.Intent != IntentAnswer {
		t.Fatalf("expected ANSWER, got %s", res.Intent)
	}
	if h.eval.evalCalls != 0 {
		t.Fatal("nothing to evaluate without an active question")
	}
	if res.Session.Active == nil || res.Replies[0].Kind != domain.KindQuestion {
		t.Fatalf("expected a delivered question, got %+v", res.Replies)
	}
}

func TestQuitReportsAndRejectsFurtherTurns(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.send(t, "s1", "start")
	res := h.send(t, "s1", "bye")
	if !res.Session.Completed || res.Session.Active != nil {
		t.Fatalf("quit should complete and close the open question: %+v", res.Session)
	}

	before, err := h.repo.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.orch.HandleTurn(context.Background(), TurnInput{SessionID: "s1", UserID: "anon_1", Text: "hello again"})
	if !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted, got %v", err)
	}
	after, _ := h.repo.GetSession(context.Background(), "s1")
	if !reflect.DeepEqual(before, after) {
		t.Fatal("completed session was mutated")
	}
}

func TestGeneratingAtCeilingReports(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sess := domain.NewSession("s1", "anon_1", DefaultSessionDefaults(), time.Now())
	sess.MaxQuestions = 2
	sess.QuestionsAsked = 2
	if err := h.repo.UpsertSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	res := h.send(t, "s1", "next")
	if !statesEqual(res.States, StateLoading, StateRouting, StateGenerating, StateReporting, StateTerminated) {
		t.Fatalf("unexpected states: %v", res.States)
	}
	if h.bank.callCount() != 0 {
		t.Fatal("no question may be generated past the ceiling")
	}
}

func TestQuestionsAskedOnlyGrowsOnEvaluation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withMaxQuestions(10))
	script := []string{"hi", "start", "answer one", "next", "what should I study?", "answer two", "let's switch to Go", "answer three"}
	prev := 0
	for _, msg := range script {
		res := h.send(t, "s1", msg)
		evaluated := 0
		for _, st := range res.States {
			if st == StateEvaluating {
				evaluated++
			}
		}
		if got := res.Session.QuestionsAsked; got != prev+evaluated {
			t.Fatalf("after %q: questionsAsked=%d, want %d", msg, got, prev+evaluated)
		}
		prev = res.Session.QuestionsAsked
	}
	if prev != 3 {
		t.Fatalf("expected 3 evaluations, got %d", prev)
	}
}

func TestActiveQuestionMatchesLastLoopMessage(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withAutoAdvance(false))
	h.bank.fn = nil
	script := []string{"start", "answer", "next", "next", "answer", "hi"}
	for _, msg := range script {
		res := h.send(t, "s1", msg)
		last := lastLoopMessage(res.Session)
		awaiting := last != nil && last.Kind == domain.KindQuestion
		if awaiting != (res.Session.Active != nil) {
			t.Fatalf("after %q: active=%v but last loop message is %+v", msg, res.Session.Active != nil, last)
		}
	}
}

func lastLoopMessage(s *domain.Session) *domain.Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Speaker != domain.SpeakerSystem || m.Kind == domain.KindConsult {
			continue
		}
		return &m
	}
	return nil
}

func TestStarBannerPrefixesFeedback(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.progress.gained = true
	h.send(t, "s1", "start")
	res := h.send(t, "s1", "answer")

	if !res.StarGained {
		t.Fatal("expected StarGained")
	}
	if !strings.HasPrefix(res.Replies[0].Text, "⭐ Star earned!") {
		t.Fatalf("expected star banner, got %q", res.Replies[0].Text)
	}
}

func TestProgressFailureDoesNotBreakTurn(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.progress.gained = true
	h.progress.err = errBoom
	h.send(t, "s1", "start")
	res := h.send(t, "s1", "answer")

	if res.StarGained || strings.HasPrefix(res.Replies[0].Text, "⭐") {
		t.Fatal("failed progress write must not claim a star")
	}
}

func TestCollaboratorFallbackTexts(t *testing.T) {
	t.Parallel()

	repo := store.NewMemory()
	eval := &fakeEvaluator{score: 75, analyzeErr: errBoom}
	orch, err := New(Deps{
		Sessions:   NewSessions(repo, domain.SessionDefaults{MaxQuestions: 1}),
		Classifier: keywordClassifier(),
		Questions:  &fakeBank{},
		Evaluator:  eval,
		Feedback:   fakeFeedback{err: errBoom},
		Consultant: fakeConsultant{err: errBoom},
		Reports:    fakeReports{err: errBoom},
	}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	consult, err := orch.HandleTurn(ctx, TurnInput{SessionID: "s1", Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if consult.Replies[0].Text != consultFallback {
		t.Fatalf("expected consult fallback, got %q", consult.Replies[0].Text)
	}

	if _, err := orch.HandleTurn(ctx, TurnInput{SessionID: "s1", Text: "start"}); err != nil {
		t.Fatal(err)
	}
	res, err := orch.HandleTurn(ctx, TurnInput{SessionID: "s1", Text: "answer"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Replies[0].Text, "You scored 75/100, a pass.") {
		t.Fatalf("expected plain feedback, got %q", res.Replies[0].Text)
	}
	report := res.Session.Report
	if report == nil || report.Tier != "Unknown" || report.TotalScore != 75 {
		t.Fatalf("expected fallback report with average score, got %+v", report)
	}
	if !strings.HasPrefix(res.Replies[1].Text, "## Interview Report") {
		t.Fatalf("expected locally rendered report, got %q", res.Replies[1].Text)
	}
}

func TestRouterFailureFallsBackToConsult(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.classifier.fn = func(ClassifyInput) (Classification, error) { return Classification{}, errBoom }

	res := h.send(t, "s1", "anything")
	if res.Intent != IntentConsult || res.FallbackReason == "" {
		t.Fatalf("expected consult fallback with reason, got %+v", res)
	}
}

func TestClassifierSeesActiveQuestion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	first := h.send(t, "s1", "start")
	h.send(t, "s1", "answer")

	got := h.classifier.calls[1]
	if got.ActiveQuestion != first.Session.Active.Text || got.Topic != DefaultTopic {
		t.Fatalf("classifier context = %+v", got)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.orch.HandleTurn(context.Background(), TurnInput{SessionID: "s1", Text: "   "})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestStartConfiguresSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	sess, err := h.orch.Start(ctx, StartInput{SessionID: "s1", UserID: "anon_1", Track: "Go", MaxQuestions: 2})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if sess.Track != "Go" || sess.Topic != DefaultTopic || sess.MaxQuestions != 2 {
		t.Fatalf("unexpected session config: %+v", sess)
	}

	res := h.send(t, "s1", "start")
	if res.Session.Active.Subject != "Go" {
		t.Fatalf("question should use configured track, got %+v", res.Session.Active)
	}

	if _, err := h.orch.Start(ctx, StartInput{SessionID: "s1"}); !errors.Is(err, ErrSessionStarted) {
		t.Fatalf("expected ErrSessionStarted, got %v", err)
	}
}

type failingRepo struct{ store.SessionRepository }

func (failingRepo) GetSession(context.Context, string) (*domain.Session, error) {
	return nil, errBoom
}

func TestStorageFailureIsReturned(t *testing.T) {
	t.Parallel()

	orch, err := New(Deps{
		Sessions:  NewSessions(failingRepo{}, domain.SessionDefaults{}),
		Questions: &fakeBank{},
		Evaluator: &fakeEvaluator{},
	}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := orch.HandleTurn(context.Background(), TurnInput{SessionID: "s1", Text: "hi"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, DefaultOptions()); err == nil {
		t.Fatal("expected error for missing sessions")
	}
}

func TestConsultKeepsQuestionOpen(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	asked := h.send(t, "s1", "start")
	open := asked.Session.Active.Text

	aside := h.send(t, "s1", "what should I study next?")
	if aside.Intent != IntentConsult {
		t.Fatalf("expected CONSULT, got %s", aside.Intent)
	}
	if aside.Session.Active == nil || aside.Session.Active.Text != open {
		t.Fatalf("consult should leave %q open, got %+v", open, aside.Session.Active)
	}
	if last := lastLoopMessage(aside.Session); last == nil || last.Kind != domain.KindQuestion || last.Text != open {
		t.Fatalf("open question must match the last non-consult reply, got %+v", last)
	}

	graded := h.send(t, "s1", "my answer")
	if len(graded.Session.Answered) != 1 || graded.Session.Answered[0].Question.Text != open {
		t.Fatalf("answer should be graded against the open question, got %+v", graded.Session.Answered)
	}
}

func TestFailedSaveDoesNotRecordProgress(t *testing.T) {
	t.Parallel()

	repo := &flakySessions{MemoryStore: store.NewMemory()}
	h := newHarness(t, withSessionRepo(repo))
	h.progress.gained = true
	h.send(t, "s1", "start")

	repo.arm()
	if _, err := h.orch.HandleTurn(context.Background(), TurnInput{SessionID: "s1", UserID: "anon_1", Text: "answer"}); !errors.Is(err, errBoom) {
		t.Fatalf("expected the save failure, got %v", err)
	}
	if h.progress.calls != 0 {
		t.Fatalf("progress written for an unsaved turn: %d calls", h.progress.calls)
	}

	res := h.send(t, "s1", "answer")
	if h.progress.calls != 1 {
		t.Fatalf("expected exactly one progress write after the retry, got %d", h.progress.calls)
	}
	if res.Session.QuestionsAsked != 1 || len(res.Session.Answered) != 1 {
		t.Fatalf("expected one evaluation, got asked=%d answered=%d", res.Session.QuestionsAsked, len(res.Session.Answered))
	}
	if !res.StarGained {
		t.Fatal("the saved turn should still report the star")
	}
}
