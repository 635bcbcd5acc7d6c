package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/techtree/internal/domain"
)

const consultFallback = "I'm here to help you practice. Tell me which track or topic you'd like to work on, or say \"next\" and I'll ask you a question."

func (o *Orchestrator) consult(ctx context.Context, t *turn) State {
	var (
		reply string
		err   error
	)
	if o.consultant == nil {
		err = errors.New("no consultant configured")
	} else {
		reply, err = o.consultant.Recommend(ctx, ConsultInput{
			Message: t.input.Text,
			Track:   t.sess.Track,
			Topic:   t.sess.Topic,
		})
	}
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty recommendation")
	}
	if err != nil {
		o.degrade(t, "consultant", err)
		reply = consultFallback
	}

	o.say(t, domain.KindConsult, reply)
	return StateRouting
}

// generate delivers the next queued question, refilling the queue first
// when it is empty. An open question is dropped: asking for another one
// skips it.
func (o *Orchestrator) generate(ctx context.Context, t *turn) State {
	s := t.sess
	if s.QuestionsAsked >= s.MaxQuestions {
		return StateReporting
	}
	s.Active = nil

	if len(s.Queue) == 0 {
		s.Queue = o.refill(ctx, t)
	}
	if len(s.Queue) == 0 {
		o.metrics.IncFallback("no_question")
		o.say(t, domain.KindApology, fmt.Sprintf(
			"Sorry, I couldn't come up with a question about %q right now. Please try again, or pick a different topic.", s.Topic))
		return StateRouting
	}

	next := s.Queue[0]
	s.Queue = s.Queue[1:]
	s.Active = &next
	o.metrics.IncQuestionsDelivered()
	o.say(t, domain.KindQuestion, next.Text)
	return StateRouting
}

func (o *Orchestrator) refill(ctx context.Context, t *turn) []domain.Question {
	s := t.sess
	qs, err := o.questions.GenerateQuestions(ctx, QuestionRequest{
		Subject:    s.Track,
		Topic:      s.Topic,
		Difficulty: s.Difficulty,
		Count:      o.opts.BatchSize,
	})
	if err != nil {
		o.degrade(t, "question_bank", err)
	}

	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		if strings.TrimSpace(q.Text) == "" {
			continue
		}
		if q.Subject == "" {
			q.Subject = s.Track
		}
		if q.Topic == "" {
			q.Topic = s.Topic
		}
		if q.Difficulty == "" {
			q.Difficulty = s.Difficulty
		}
		out = append(out, q)
	}
	return out
}

func (o *Orchestrator) evaluate(ctx context.Context, t *turn) State {
	s := t.sess
	q := *s.Active

	v, err := o.evaluator.EvaluateAnswer(ctx, q, t.input.Text)
	if err != nil {
		o.degrade(t, "evaluator", err)
		v = domain.DegradedVerdict(err.Error())
	} else {
		better := ""
		if v.BetterAnswer != nil {
			better = *v.BetterAnswer
		}
		v = domain.NewVerdict(v.Score, v.Rationale, v.Feedback, better)
	}

	// Progress is only previewed here. The write happens after the session
	// is saved so a failed save cannot leave a star behind.
	if o.progress != nil && s.UserID != "" && !v.Degraded {
		gained, perr := o.progress.PreviewResult(ctx, s.UserID, q.Topic, v.Passed, v.Score)
		if perr != nil {
			o.degrade(t, "progress", perr)
		}
		t.starGained = gained && perr == nil
		t.pending = append(t.pending, progressUpdate{subject: q.Topic, passed: v.Passed, score: v.Score})
	}

	s.LastVerdict = &v
	s.QuestionsAsked++
	s.Active = nil
	s.Answered = append(s.Answered, domain.AnsweredQuestion{
		Question:   q,
		Answer:     t.input.Text,
		Verdict:    v,
		AnsweredAt: o.now().UTC(),
	})
	t.evaluated = &q
	return StateFeedingBack
}

func (o *Orchestrator) giveFeedback(ctx context.Context, t *turn) State {
	s := t.sess
	v := *s.LastVerdict
	q := *t.evaluated

	var msg string
	switch {
	case v.Degraded:
		msg = "I couldn't evaluate that answer, so it has been recorded with a score of 0."
	case o.feedback == nil:
		msg = plainFeedback(v)
	default:
		text, err := o.feedback.ComposeFeedback(ctx, q, t.input.Text, v)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty feedback")
		}
		if err != nil {
			o.degrade(t, "feedback", err)
			text = plainFeedback(v)
		}
		msg = text
	}

	if t.starGained {
		msg = fmt.Sprintf("⭐ Star earned! Your mastery of %s went up.\n\n%s", q.Topic, msg)
	}
	o.say(t, domain.KindFeedback, msg)

	switch {
	case s.QuestionsAsked >= s.MaxQuestions:
		return StateReporting
	case o.opts.AutoAdvance:
		return StateGenerating
	default:
		return StateRouting
	}
}

func plainFeedback(v domain.Verdict) string {
	outcome := "not a pass yet"
	if v.Passed {
		outcome = "a pass"
	}
	msg := fmt.Sprintf("You scored %d/100, %s.", v.Score, outcome)
	if f := strings.TrimSpace(v.Feedback); f != "" {
		msg += " " + f
	}
	return msg
}

func (o *Orchestrator) finalize(ctx context.Context, t *turn) State {
	s := t.sess

	report, err := o.evaluator.AnalyzeSession(ctx, s.Messages)
	if err != nil {
		o.degrade(t, "analysis", err)
		report = domain.FallbackReport(s.AverageScore())
	}

	var text string
	if o.reports != nil {
		text, err = o.reports.FormatReport(ctx, report)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty report")
		}
		if err != nil {
			o.degrade(t, "report_formatter", err)
			text = ""
		}
	}
	if text == "" {
		text = RenderReport(report)
	}

	s.Active = nil
	s.Report = &report
	o.say(t, domain.KindReport, text)
	s.Completed = true
	o.metrics.IncSessionsCompleted()
	return StateTerminated
}

// RenderReport formats a report as Markdown without a language model.
func RenderReport(r domain.Report) string {
	var b strings.Builder
	b.WriteString("## Interview Report\n\n")
	fmt.Fprintf(&b, "**Total score:** %d\n\n", r.TotalScore)
	fmt.Fprintf(&b, "**Tier:** %s\n", r.Tier)
	writeList(&b, "Strengths", r.Strengths)
	writeList(&b, "Weaknesses", r.Weaknesses)
	if g := strings.TrimSpace(r.StudyGuide); g != "" {
		fmt.Fprintf(&b, "\n### Study guide\n\n%s\n", g)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n### %s\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
