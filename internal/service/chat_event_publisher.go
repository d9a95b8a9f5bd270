package service

import (
	"context"
	"time"

	"magic-collection-be/internal/pkg/logger"
	"magic-collection-be/pkg/events"
	"magic-collection-be/pkg/relay"
)

const eventPublishTimeout = 3 * time.Second

// EventBus is the part of the NATS publisher the chat events need.
type EventBus interface {
	Publish(ctx context.Context, event events.Event) error
}

// ChatEventPublisher announces bookkeeping outcomes. A nil bus makes it a no-op.
type ChatEventPublisher struct {
	bus    EventBus
	logger logger.ILogger
}

func NewChatEventPublisher(bus EventBus, log logger.ILogger) *ChatEventPublisher {
	return &ChatEventPublisher{
		bus:    bus,
		logger: log,
	}
}

var _ relay.EventPublisher = (*ChatEventPublisher)(nil)

func (p *ChatEventPublisher) PublishExchangeCompleted(ctx context.Context, evt relay.ExchangeCompleted) {
	p.publish(ctx, events.BaseEvent{
		Type: events.TypeChatExchangeCompleted,
		Data: map[string]interface{}{
			"history_id":    evt.HistoryId.String(),
			"user_id":       evt.OwnerId.String(),
			"prompt_length": len([]rune(evt.Prompt)),
			"answer_length": len([]rune(evt.Answer)),
		},
		OccurredAt: time.Now(),
	})
}

func (p *ChatEventPublisher) PublishHistoryAbandoned(ctx context.Context, evt relay.HistoryAbandoned) {
	p.publish(ctx, events.BaseEvent{
		Type: events.TypeChatHistoryAbandoned,
		Data: map[string]interface{}{
			"history_id": evt.HistoryId.String(),
			"user_id":    evt.OwnerId.String(),
		},
		OccurredAt: time.Now(),
	})
}

func (p *ChatEventPublisher) publish(ctx context.Context, evt events.BaseEvent) {
	if p == nil || p.bus == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, eventPublishTimeout)
	defer cancel()

	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Error("CHAT_EVENTS", "Failed to publish "+evt.Type+" event", map[string]interface{}{"error": err.Error()})
	}
}
