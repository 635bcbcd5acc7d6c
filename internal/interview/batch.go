package interview

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashureev/techtree/internal/domain"
	"golang.org/x/sync/errgroup"
)

// BatchResult is the outcome of one request in a batch.
type BatchResult struct {
	Request   QuestionRequest
	Questions []domain.Question
	Err       error
}

// GenerateBatch runs independent question requests concurrently, at most
// limit at a time. Results are collected in completion order. A failed
// request is reported in its result and does not cancel the others.
func GenerateBatch(ctx context.Context, bank QuestionBank, reqs []QuestionRequest, limit int) []BatchResult {
	if limit < 1 {
		limit = 1
	}

	var (
		mu      sync.Mutex
		results = make([]BatchResult, 0, len(reqs))
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, req := range reqs {
		g.Go(func() error {
			qs, err := bank.GenerateQuestions(ctx, req)
			if err != nil {
				err = fmt.Errorf("generate %s/%s: %w", req.Subject, req.Topic, err)
			}
			mu.Lock()
			results = append(results, BatchResult{Request: req, Questions: qs, Err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Flatten concatenates the questions of every successful result.
func Flatten(results []BatchResult) ([]domain.Question, []error) {
	var (
		qs   []domain.Question
		errs []error
	)
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		qs = append(qs, r.Questions...)
	}
	return qs, errs
}
