package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/techtree/internal/app"
	"github.com/ashureev/techtree/internal/config"
	"github.com/ashureev/techtree/internal/domain"
	"github.com/ashureev/techtree/internal/interview"
	"github.com/ashureev/techtree/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type chatOpts struct {
	backend      string
	userID       string
	sessionID    string
	track        string
	topic        string
	difficulty   string
	maxQuestions int
	verbose      bool
}

func newChatCmd() *cobra.Command {
	var opts chatOpts

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive interview",
		Long:  "Starts an interview session and reads answers from stdin. Type \"next\" for a question, change topics in plain words, or \"quit\" for your report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runChat(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.backend, "store", config.BackendMemory, "session store: memory or sqlite")
	cmd.Flags().StringVar(&opts.userID, "user", "cli_local", "user id used for skill progress")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "resume or create this session id (default: a new one)")
	cmd.Flags().StringVar(&opts.track, "track", "", "track for a new session")
	cmd.Flags().StringVar(&opts.topic, "topic", "", "topic for a new session")
	cmd.Flags().StringVar(&opts.difficulty, "difficulty", "", "difficulty for a new session")
	cmd.Flags().IntVar(&opts.maxQuestions, "max-questions", 0, "questions before the final report")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log turns and model calls to stderr")
	return cmd
}

func runChat(cmd *cobra.Command, cfg *config.Config, opts chatOpts) error {
	switch opts.backend {
	case config.BackendMemory, config.BackendSQLite:
		cfg.SessionBackend = opts.backend
	default:
		return fmt.Errorf("unsupported store %q", opts.backend)
	}

	ctx := cmd.Context()
	stack, err := app.Build(ctx, cfg, cliLogger(cmd.ErrOrStderr(), opts.verbose))
	if err != nil {
		return err
	}
	defer stack.Close()

	user, err := store.EnsureUser(ctx, stack.Repo, opts.userID)
	if err != nil {
		return err
	}

	sessionID := opts.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess, err := stack.Orchestrator.Start(ctx, interview.StartInput{
		SessionID:    sessionID,
		UserID:       user.UserID,
		Track:        opts.track,
		Topic:        opts.topic,
		Difficulty:   opts.difficulty,
		MaxQuestions: opts.maxQuestions,
	})
	if errors.Is(err, interview.ErrSessionStarted) {
		sess, err = stack.Orchestrator.Snapshot(ctx, sessionID, user.UserID)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Hi %s! Session %s: %s / %s (%s), %d questions.\n",
		user.Nickname, sess.ID, sess.Track, sess.Topic, sess.Difficulty, sess.MaxQuestions)
	fmt.Fprintln(out, "Say \"next\" to get a question. Ctrl-D exits.")
	if sess.Completed {
		fmt.Fprintln(out, "This session is already finished.")
		return nil
	}

	return chatLoop(cmd, stack.Orchestrator, sess.ID, user.UserID, cmd.InOrStdin(), out)
}

func chatLoop(cmd *cobra.Command, orch *interview.Orchestrator, sessionID, userID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		res, err := orch.HandleTurn(cmd.Context(), interview.TurnInput{
			SessionID: sessionID,
			UserID:    userID,
			Text:      text,
		})
		if err != nil {
			return err
		}
		for _, m := range res.Replies {
			printReply(out, m)
		}
		if res.Session.Completed {
			return nil
		}
	}
}

func printReply(w io.Writer, m domain.Message) {
	label := "Interviewer"
	switch m.Kind {
	case domain.KindQuestion:
		label = "Question"
	case domain.KindFeedback:
		label = "Feedback"
	case domain.KindReport:
		label = "Report"
	}
	fmt.Fprintf(w, "\n[%s]\n%s\n", label, m.Text)
}
