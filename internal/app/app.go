// Package app assembles the interview stack from configuration. Both the
// HTTP server and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/techtree/internal/config"
	"github.com/ashureev/techtree/internal/curriculum"
	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/interview"
	"github.com/ashureev/techtree/internal/llm"
	"github.com/ashureev/techtree/internal/metrics"
	"github.com/ashureev/techtree/internal/store"
)

// App is a wired interview stack.
type App struct {
	Config       *config.Config
	Repo         store.Repository
	Sessions     store.SessionRepository
	Tree         *curriculum.Tree
	Metrics      *metrics.Metrics
	Orchestrator *interview.Orchestrator
	LLM          *llm.Client

	closers []func() error
}

// Build opens the stores, loads the curriculum and wires the collaborators.
// The caller must Close the App.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Metrics: metrics.New()}

	if err := a.openStores(ctx, logger); err != nil {
		_ = a.Close()
		return nil, err
	}

	tree, err := loadTree(cfg.CurriculumPath)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Tree = tree

	a.LLM = llm.NewClient(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
		Logger:     logger,
	})
	interviewer := llm.NewInterviewer(a.LLM, tree)
	grader := llm.NewGrader(a.LLM)

	sessions := interview.NewSessions(a.Sessions, domain.SessionDefaults{
		Track:        cfg.Interview.Track,
		Topic:        cfg.Interview.Topic,
		Difficulty:   cfg.Interview.Difficulty,
		MaxQuestions: cfg.Interview.MaxQuestions,
	})
	a.Orchestrator, err = interview.New(interview.Deps{
		Sessions:   sessions,
		Classifier: llm.NewRouterAgent(a.LLM.WithModel(cfg.LLM.RouterModel)),
		Questions:  llm.NewQuestionMaker(a.LLM),
		Evaluator:  grader,
		Feedback:   interviewer,
		Consultant: interviewer,
		Reports:    interviewer,
		Progress:   store.NewProgressService(a.Repo),
		Metrics:    a.Metrics,
		Logger:     logger,
	}, interview.Options{
		AutoAdvance: cfg.Interview.AutoAdvance,
		BatchSize:   cfg.Interview.BatchSize,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context, logger *slog.Logger) error {
	cfg := a.Config
	if cfg.SessionBackend == config.BackendMemory {
		mem := store.NewMemory()
		a.Repo, a.Sessions = mem, mem
		logger.Info("Using in-memory store")
		return nil
	}

	sqlite, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, sqlite.Close)
	if err := sqlite.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	a.Repo, a.Sessions = sqlite, sqlite
	logger.Info("Database connected", "path", cfg.DBPath)

	if cfg.SessionBackend != config.BackendRedis {
		return nil
	}
	rs, err := store.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		store.WithTTL(cfg.SessionTTL),
		store.WithPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, rs.Close)
	a.Sessions = rs
	a.Repo = splitStore{Repository: sqlite, sessions: rs}
	logger.Info("Redis session store connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
	return nil
}

func loadTree(path string) (*curriculum.Tree, error) {
	if path == "" {
		return curriculum.Default()
	}
	tree, err := curriculum.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load curriculum: %w", err)
	}
	return tree, nil
}

// Close releases the stores in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// splitStore keeps users and skills in SQLite while sessions live in Redis.
type splitStore struct {
	store.Repository
	sessions store.SessionRepository
}

func (s splitStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

func (s splitStore) UpsertSession(ctx context.Context, sess *domain.Session) error {
	return s.sessions.UpsertSession(ctx, sess)
}

func (s splitStore) Ping(ctx context.Context) error {
	if err := s.Repository.Ping(ctx); err != nil {
		return err
	}
	return s.sessions.Ping(ctx)
}
