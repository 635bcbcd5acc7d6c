package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/techtree/internal/curriculum"
	"github.com/ashureev/techtree/internal/interview"
	"github.com/ashureev/techtree/internal/llm"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	var (
		path        string
		track       string
		tier        string
		difficulty  string
		count       int
		parallelism int
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate questions for every subject of a tier",
		Long:  "Expands a tier into one request per subject and generates them in parallel. Prints the questions as JSON; failed subjects are reported on stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tree, err := openTree(path)
			if err != nil {
				return err
			}
			reqs, err := tierRequests(tree, track, tier, difficulty, count)
			if err != nil {
				return err
			}

			client := llm.NewClient(llm.Config{
				BaseURL:    cfg.LLM.BaseURL,
				APIKey:     cfg.LLM.APIKey,
				Model:      cfg.LLM.Model,
				Timeout:    cfg.LLM.Timeout,
				MaxRetries: cfg.LLM.MaxRetries,
				Logger:     cliLogger(cmd.ErrOrStderr(), verbose),
			})
			results := interview.GenerateBatch(cmd.Context(), llm.NewQuestionMaker(client), reqs, parallelism)
			qs, errs := interview.Flatten(results)
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(qs); err != nil {
				return fmt.Errorf("encode questions: %w", err)
			}
			if len(qs) == 0 && len(errs) > 0 {
				return fmt.Errorf("all %d subjects failed", len(errs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "curriculum", "", "path to a curriculum YAML file (default: built-in)")
	cmd.Flags().StringVar(&track, "track", "", "track to generate for (required)")
	cmd.Flags().StringVar(&tier, "tier", "", "tier within the track (required)")
	cmd.Flags().StringVar(&difficulty, "difficulty", "Intermediate", "question difficulty")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "questions per subject")
	cmd.Flags().IntVarP(&parallelism, "parallel", "p", 4, "concurrent model calls")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log model calls to stderr")
	_ = cmd.MarkFlagRequired("track")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

// tierRequests turns each subject of a tier into a request. The subject's
// concepts become the topic so the model stays on the curriculum.
func tierRequests(tree *curriculum.Tree, track, tier, difficulty string, count int) ([]interview.QuestionRequest, error) {
	subjects, err := tree.Subjects(track, tier)
	if err != nil {
		return nil, err
	}
	if count < 1 {
		count = 1
	}
	reqs := make([]interview.QuestionRequest, 0, len(subjects))
	for _, s := range subjects {
		topic := s.Name
		if len(s.Concepts) > 0 {
			topic = s.Name + " (" + strings.Join(s.Concepts, ", ") + ")"
		}
		reqs = append(reqs, interview.QuestionRequest{
			Subject:    s.Name,
			Topic:      topic,
			Difficulty: difficulty,
			Count:      count,
		})
	}
	return reqs, nil
}
