package relay

import (
	"context"
	"errors"
	"fmt"

	"magic-collection-be/internal/pkg/logger"
	"magic-collection-be/pkg/llm"

	"github.com/google/uuid"
)

type Orchestrator struct {
	store        ConversationStore
	model        ModelStreamer
	dispatcher   Dispatcher
	registry     SessionRegistry
	logger       logger.ILogger
	systemPrompt string
	// streamOptions tune every upstream request, e.g. temperature.
	streamOptions []llm.Option
}

func NewOrchestrator(
	store ConversationStore,
	model ModelStreamer,
	dispatcher Dispatcher,
	registry SessionRegistry,
	log logger.ILogger,
	systemPrompt string,
	streamOptions ...llm.Option,
) *Orchestrator {
	return &Orchestrator{
		store:         store,
		model:         model,
		dispatcher:    dispatcher,
		registry:      registry,
		logger:        log,
		systemPrompt:  systemPrompt,
		streamOptions: streamOptions,
	}
}

// Start resolves the history and opens the upstream stream. Every error it returns
// happens before a byte reaches the client.
func (o *Orchestrator) Start(ctx context.Context, req Request) (*StreamSession, error) {
	s := &StreamSession{
		Id:      uuid.New(),
		OwnerId: req.OwnerId,
		Prompt:  req.Prompt,
		o:       o,
	}
	s.state.Store(int32(StateResolvingHistory))

	var prior []ContextExchange
	if req.HistoryId == nil {
		historyId, err := o.store.CreateHistory(ctx, req.OwnerId)
		if err != nil {
			s.state.Store(int32(StateClosed))
			return nil, persistenceErr("create history", err)
		}
		s.HistoryId = historyId
		s.FreshlyCreated = true
	} else {
		s.HistoryId = *req.HistoryId

		exists, err := o.store.HistoryExists(ctx, s.HistoryId, req.OwnerId)
		if err != nil {
			s.state.Store(int32(StateClosed))
			return nil, persistenceErr("check history", err)
		}
		if !exists {
			s.state.Store(int32(StateClosed))
			return nil, ErrHistoryNotFound
		}

		prior, err = o.store.LoadContextExchanges(ctx, s.HistoryId, req.OwnerId)
		if err != nil {
			s.state.Store(int32(StateClosed))
			return nil, persistenceErr("load context", err)
		}
	}

	messages := BuildMessages(o.systemPrompt, prior, req.Prompt)

	// The upstream must outlive the inbound request context; the session cancels it.
	stream, err := o.model.OpenStream(context.WithoutCancel(ctx), messages, o.streamOptions...)
	if err != nil {
		s.state.Store(int32(StateClosed))
		if s.FreshlyCreated {
			o.scheduleAbandoned(s.HistoryId, s.OwnerId)
		}
		o.logger.Error("RELAY", "Failed to open upstream stream", map[string]interface{}{
			"history_id": s.HistoryId.String(),
			"error":      err.Error(),
		})
		return nil, err
	}

	s.stream = stream
	s.state.Store(int32(StateStreaming))
	if o.registry != nil {
		o.registry.Register(s)
	}

	o.logger.Debug("RELAY", "Relay started", map[string]interface{}{
		"session_id":      s.Id.String(),
		"history_id":      s.HistoryId.String(),
		"freshly_created": s.FreshlyCreated,
		"context_turns":   len(prior),
	})
	return s, nil
}

func (o *Orchestrator) scheduleAbandoned(historyId, ownerId uuid.UUID) {
	evt := HistoryAbandoned{HistoryId: historyId, OwnerId: ownerId}
	if err := o.dispatcher.DispatchAbandoned(context.Background(), evt); err != nil {
		o.logger.Error("RELAY", "Failed to schedule abandoned history cleanup", map[string]interface{}{
			"history_id": historyId.String(),
			"error":      err.Error(),
		})
	}
}

func persistenceErr(op string, err error) error {
	if errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
