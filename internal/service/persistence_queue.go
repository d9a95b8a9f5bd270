package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"magic-collection-be/internal/pkg/logger"
	"magic-collection-be/pkg/relay"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	TopicExchangeCompleted = "chat.exchange.completed"
	TopicHistoryAbandoned  = "chat.history.abandoned"

	// trackedKey marks messages published through the queue, which Close waits on.
	trackedKey = "tracked"
)

var ErrQueueClosed = errors.New("persistence queue closed")

// IPersistenceQueue moves bookkeeping off the relay path. Consume must be running
// before anything is dispatched; gochannel drops messages that have no subscriber.
// Close refuses new dispatches, waits for queued ones to be processed (bounded by
// ctx) and then closes the pub/sub.
type IPersistenceQueue interface {
	relay.Dispatcher
	Consume(ctx context.Context) error
	Close(ctx context.Context) error
}

type persistenceQueue struct {
	pubSub     *gochannel.GoChannel
	bookkeeper *relay.Bookkeeper
	logger     logger.ILogger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func NewPersistenceQueue(pubSub *gochannel.GoChannel, bookkeeper *relay.Bookkeeper, log logger.ILogger) IPersistenceQueue {
	return &persistenceQueue{
		pubSub:     pubSub,
		bookkeeper: bookkeeper,
		logger:     log,
	}
}

func (q *persistenceQueue) DispatchCompleted(ctx context.Context, evt relay.ExchangeCompleted) error {
	return q.publish(TopicExchangeCompleted, evt)
}

func (q *persistenceQueue) DispatchAbandoned(ctx context.Context, evt relay.HistoryAbandoned) error {
	return q.publish(TopicHistoryAbandoned, evt)
}

func (q *persistenceQueue) publish(topic string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending.Add(1)
	q.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), raw)
	msg.Metadata.Set(trackedKey, "1")
	if err := q.pubSub.Publish(topic, msg); err != nil {
		q.pending.Done()
		return err
	}
	return nil
}

// settle acks msg and releases Close once every tracked message is through.
func (q *persistenceQueue) settle(msg *message.Message) {
	msg.Ack()
	if msg.Metadata.Get(trackedKey) != "" {
		q.pending.Done()
	}
}

func (q *persistenceQueue) Consume(ctx context.Context) error {
	completed, err := q.pubSub.Subscribe(ctx, TopicExchangeCompleted)
	if err != nil {
		return err
	}
	abandoned, err := q.pubSub.Subscribe(ctx, TopicHistoryAbandoned)
	if err != nil {
		return err
	}

	go func() {
		for msg := range completed {
			q.processCompleted(ctx, msg)
		}
	}()
	go func() {
		for msg := range abandoned {
			q.processAbandoned(ctx, msg)
		}
	}()

	return nil
}

func (q *persistenceQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-ctx.Done():
		err = ctx.Err()
		q.logger.Warn("PERSISTENCE_QUEUE", "Closing with bookkeeping still queued", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return errors.Join(err, q.pubSub.Close())
}

// Every message is acked. Bookkeeping is best effort and a nack would redeliver forever.

func (q *persistenceQueue) processCompleted(ctx context.Context, msg *message.Message) {
	defer q.settle(msg)

	var evt relay.ExchangeCompleted
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		q.logger.Error("PERSISTENCE_QUEUE", "Failed to decode completed exchange", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return
	}
	q.bookkeeper.Complete(context.WithoutCancel(ctx), evt)
}

func (q *persistenceQueue) processAbandoned(ctx context.Context, msg *message.Message) {
	defer q.settle(msg)

	var evt relay.HistoryAbandoned
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		q.logger.Error("PERSISTENCE_QUEUE", "Failed to decode abandoned history", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return
	}
	q.bookkeeper.Abandon(context.WithoutCancel(ctx), evt)
}
