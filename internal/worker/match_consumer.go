// Package worker hosts the NSQ consumers that react to pipeline events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"github.com/urlwiz/domainwizard/features/batch"
	"github.com/urlwiz/domainwizard/internal/correlate"
)

// Matcher re-runs matching (and notification) across all searches.
type Matcher interface {
	MatchAll(ctx context.Context) error
}

// MatchConsumer listens for embeddings.finalized events and refreshes every
// search's association set against the newly embedded listings.
type MatchConsumer struct {
	matcher Matcher
}

func NewMatchConsumer(m Matcher) *MatchConsumer {
	return &MatchConsumer{matcher: m}
}

func (h *MatchConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var event batch.FinalizedEvent
	if err := json.Unmarshal(m.Body, &event); err != nil {
		// Poison pill, don't requeue.
		slog.Error("poison pill: invalid finalized event", "error", err)
		return nil
	}

	ctx := correlate.WithID(context.Background(), event.CorrelationID)
	slog.InfoContext(ctx, "embeddings finalized, refreshing matches",
		"batch_id", event.BatchID, "written", event.Written, "correlation_id", event.CorrelationID)

	if err := h.matcher.MatchAll(ctx); err != nil {
		slog.ErrorContext(ctx, "match refresh failed", "error", err)
		return err // requeue
	}
	return nil
}
