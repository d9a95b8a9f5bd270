package relay

import (
	"context"

	"magic-collection-be/internal/pkg/logger"
)

// Bookkeeper applies the persistence side effects of a relay. Every failure is
// logged and swallowed: the client already has its answer.
type Bookkeeper struct {
	store  ConversationStore
	events EventPublisher
	logger logger.ILogger
}

func NewBookkeeper(store ConversationStore, events EventPublisher, log logger.ILogger) *Bookkeeper {
	return &Bookkeeper{
		store:  store,
		events: events,
		logger: log,
	}
}

// Complete records a finished exchange and updates the history around it.
func (b *Bookkeeper) Complete(ctx context.Context, evt ExchangeCompleted) {
	details := map[string]interface{}{
		"history_id": evt.HistoryId.String(),
		"owner_id":   evt.OwnerId.String(),
	}

	if err := b.store.AppendExchange(ctx, evt.HistoryId, evt.OwnerId, evt.Prompt, evt.Answer); err != nil {
		details["error"] = err.Error()
		b.logger.Error("BOOKKEEPER", "Failed to append exchange", details)
		// Counting an exchange that was never stored would hide the history from cleanup.
		return
	}

	isFirst, err := b.store.IncrementMessageCount(ctx, evt.HistoryId)
	if err != nil {
		details["error"] = err.Error()
		b.logger.Error("BOOKKEEPER", "Failed to increment message count", details)
	} else if isFirst {
		if err := b.store.RenameHistory(ctx, evt.HistoryId, DeriveName(evt.Prompt)); err != nil {
			details["error"] = err.Error()
			b.logger.Error("BOOKKEEPER", "Failed to name history", details)
		}
	}

	if err := b.store.TouchHistory(ctx, evt.HistoryId); err != nil {
		details["error"] = err.Error()
		b.logger.Warn("BOOKKEEPER", "Failed to touch history", details)
	}

	if b.events != nil {
		b.events.PublishExchangeCompleted(ctx, evt)
	}
}

// Abandon removes a history that never received an exchange.
func (b *Bookkeeper) Abandon(ctx context.Context, evt HistoryAbandoned) {
	if err := b.store.DeleteIfEmpty(ctx, evt.HistoryId); err != nil {
		b.logger.Error("BOOKKEEPER", "Failed to delete abandoned history", map[string]interface{}{
			"history_id": evt.HistoryId.String(),
			"error":      err.Error(),
		})
		return
	}

	if b.events != nil {
		b.events.PublishHistoryAbandoned(ctx, evt)
	}
}
