package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Decision is the router's output for one message.
type Decision struct {
	Intent Intent
	// Topic is set only for CHANGE_TOPIC when the classifier named one.
	Topic string
	// FallbackReason is non-empty when classification failed and the
	// decision defaulted to CONSULT.
	FallbackReason string
}

// Router wraps a Classifier so that classification never fails.
type Router struct {
	classifier Classifier
	logger     *slog.Logger
	metrics    Recorder
}

// NewRouter creates a Router. logger and metrics may be nil.
func NewRouter(c Classifier, logger *slog.Logger, metrics Recorder) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Router{classifier: c, logger: logger, metrics: metrics}
}

// Route classifies in. It does not touch session state.
func (r *Router) Route(ctx context.Context, sessionID string, in ClassifyInput) Decision {
	if strings.TrimSpace(in.Message) == "" {
		return r.fallback(sessionID, "empty message", nil)
	}
	if r.classifier == nil {
		return r.fallback(sessionID, "no classifier configured", nil)
	}

	c, err := r.classifier.Classify(ctx, in)
	if err != nil {
		r.metrics.IncCollaboratorFailure("classifier")
		return r.fallback(sessionID, "classifier error", err)
	}

	intent, ok := ParseIntent(c.Intent)
	if !ok {
		return r.fallback(sessionID, fmt.Sprintf("unknown intent %q", c.Intent), nil)
	}

	d := Decision{Intent: intent}
	if intent == IntentChangeTopic {
		d.Topic = strings.TrimSpace(c.Topic)
	}
	return d
}

func (r *Router) fallback(sessionID, reason string, err error) Decision {
	if err != nil {
		reason = reason + ": " + err.Error()
	}
	r.logger.Warn("Routing fell back to consult",
		"session_id", sessionID,
		"reason", reason,
	)
	r.metrics.IncFallback("router")
	return Decision{Intent: IntentConsult, FallbackReason: reason}
}
