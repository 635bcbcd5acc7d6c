package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/techtree/internal/domain"
)

var (
	// ErrSessionCompleted is returned for turns sent to a finished session.
	ErrSessionCompleted = errors.New("interview session is completed")
	// ErrSessionStarted is returned when reconfiguring a session that already has turns.
	ErrSessionStarted = errors.New("interview session already started")
	// ErrEmptyMessage is returned for a turn with no text.
	ErrEmptyMessage = errors.New("message is required")
)

// Deps are the orchestrator's collaborators. Progress, Metrics, Logger and
// Now are optional.
type Deps struct {
	Sessions   *Sessions
	Classifier Classifier
	Questions  QuestionBank
	Evaluator  Evaluator
	Feedback   FeedbackComposer
	Consultant Consultant
	Reports    ReportFormatter
	Progress   ProgressRecorder
	Metrics    Recorder
	Logger     *slog.Logger
	Now        func() time.Time
}

// Options tune orchestration policy.
type Options struct {
	// AutoAdvance chains feedback straight into the next question. When
	// false the machine waits for the candidate to ask for it.
	AutoAdvance bool
	// BatchSize is how many questions to request when the queue is empty.
	BatchSize int
}

// DefaultOptions returns auto-advance with single-question refills.
func DefaultOptions() Options {
	return Options{AutoAdvance: true, BatchSize: 1}
}

// TurnInput is one user message.
type TurnInput struct {
	SessionID string
	UserID    string
	Text      string
}

// TurnResult is what a turn produced.
type TurnResult struct {
	SessionID      string           `json:"session_id"`
	Intent         Intent           `json:"intent"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	Replies        []domain.Message `json:"replies"`
	States         []State          `json:"states"`
	StarGained     bool             `json:"star_gained,omitempty"`
	Session        *domain.Session  `json:"session"`
}

// StartInput configures a new session. Empty fields take the defaults.
type StartInput struct {
	SessionID    string
	UserID       string
	Track        string
	Topic        string
	Difficulty   string
	MaxQuestions int
}

type step func(ctx context.Context, t *turn) State

// Orchestrator processes turns. It holds no per-session state; callers
// must not run two turns for the same session at once.
type Orchestrator struct {
	sessions   *Sessions
	router     *Router
	questions  QuestionBank
	evaluator  Evaluator
	feedback   FeedbackComposer
	consultant Consultant
	reports    ReportFormatter
	progress   ProgressRecorder
	metrics    Recorder
	logger     *slog.Logger
	now        func() time.Time
	opts       Options
	steps      map[State]step
}

// New wires an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, errors.New("interview: sessions store is required")
	case deps.Questions == nil:
		return nil, errors.New("interview: question bank is required")
	case deps.Evaluator == nil:
		return nil, errors.New("interview: evaluator is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}

	o := &Orchestrator{
		sessions:   deps.Sessions,
		router:     NewRouter(deps.Classifier, deps.Logger, deps.Metrics),
		questions:  deps.Questions,
		evaluator:  deps.Evaluator,
		feedback:   deps.Feedback,
		consultant: deps.Consultant,
		reports:    deps.Reports,
		progress:   deps.Progress,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        deps.Now,
		opts:       opts,
	}
	o.steps = map[State]step{
		StateConsulting:  o.consult,
		StateGenerating:  o.generate,
		StateEvaluating:  o.evaluate,
		StateFeedingBack: o.giveFeedback,
		StateReporting:   o.finalize,
	}
	return o, nil
}

// Sessions exposes the session store.
func (o *Orchestrator) Sessions() *Sessions {
	return o.sessions
}

// turn is the scratch state of one HandleTurn call.
type turn struct {
	input      TurnInput
	sess       *domain.Session
	replies    []domain.Message
	states     []State
	evaluated  *domain.Question
	starGained bool
	pending    []progressUpdate
}

// progressUpdate is a graded answer waiting to be applied to skill progress.
type progressUpdate struct {
	subject string
	passed  bool
	score   int
}

func (o *Orchestrator) say(t *turn, kind domain.MessageKind, text string) {
	m := t.sess.Append(domain.SpeakerSystem, kind, text, o.now().UTC())
	t.replies = append(t.replies, m)
}

// HandleTurn runs one message through the machine and persists the result.
// Collaborator failures degrade the reply. Only storage failures, empty
// input and turns on a completed session return an error.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	started := o.now()
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	stored, err := o.sessions.Load(ctx, in.SessionID, in.UserID)
	if err != nil {
		return nil, err
	}
	if stored.Completed {
		return nil, ErrSessionCompleted
	}

	t := &turn{
		input:  in,
		sess:   stored.Clone(),
		states: []State{StateLoading, StateRouting},
	}
	t.input.Text = text
	t.sess.Append(domain.SpeakerUser, domain.KindChat, text, o.now().UTC())

	active := ""
	if t.sess.Active != nil {
		active = t.sess.Active.Text
	}
	decision := o.router.Route(ctx, in.SessionID, ClassifyInput{
		Message:        text,
		Topic:          t.sess.Topic,
		ActiveQuestion: active,
	})
	if decision.Intent == IntentChangeTopic && decision.Topic != "" {
		t.sess.Topic = decision.Topic
		t.sess.Queue = []domain.Question{}
	}

	state := NextState(decision.Intent, t.sess.AwaitingAnswer())
	for state != StateRouting && state != StateTerminated {
		t.states = append(t.states, state)
		run, ok := o.steps[state]
		if !ok {
			return nil, fmt.Errorf("interview: no step for state %s", state)
		}
		state = run(ctx, t)
	}
	t.states = append(t.states, state)

	t.sess.UpdatedAt = o.now().UTC()
	if err := o.sessions.Save(ctx, t.sess); err != nil {
		return nil, err
	}
	o.applyProgress(ctx, t)

	o.metrics.ObserveTurn(string(decision.Intent), o.now().Sub(started))
	o.logger.Info("Interview turn processed",
		"session_id", in.SessionID,
		"intent", decision.Intent,
		"states", len(t.states),
		"questions_asked", t.sess.QuestionsAsked,
		"completed", t.sess.Completed,
	)

	return &TurnResult{
		SessionID:      in.SessionID,
		Intent:         decision.Intent,
		FallbackReason: decision.FallbackReason,
		Replies:        t.replies,
		States:         t.states,
		StarGained:     t.starGained,
		Session:        t.sess,
	}, nil
}

// Start creates a configured session, replacing an untouched one with the
// same ID.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (*domain.Session, error) {
	existing, err := o.sessions.Peek(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Started() {
		return nil, ErrSessionStarted
	}

	d := mergeDefaults(domain.SessionDefaults{
		Track:        in.Track,
		Topic:        in.Topic,
		Difficulty:   in.Difficulty,
		MaxQuestions: in.MaxQuestions,
	}, o.sessions.Defaults())

	sess := domain.NewSession(in.SessionID, in.UserID, d, o.now().UTC())
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Snapshot returns the session, creating it with defaults if needed.
func (o *Orchestrator) Snapshot(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	return o.sessions.Load(ctx, sessionID, userID)
}

// applyProgress writes the turn's graded answers once the session is
// stored. A failed write is logged and the turn still succeeds.
func (o *Orchestrator) applyProgress(ctx context.Context, t *turn) {
	for _, u := range t.pending {
		if _, err := o.progress.RecordResult(ctx, t.sess.UserID, u.subject, u.passed, u.score); err != nil {
			o.degrade(t, "progress", err)
		}
	}
}

func (o *Orchestrator) degrade(t *turn, collaborator string, err error) {
	o.metrics.IncCollaboratorFailure(collaborator)
	o.logger.Warn("Collaborator failed, degrading turn",
		"session_id", t.sess.ID,
		"collaborator", collaborator,
		"error", err,
	)
}
