// Package relay streams model output to a client while reconstructing the full
// answer, then hands the finished exchange to background bookkeeping.
//
// A relay moves through INIT -> RESOLVING_HISTORY -> STREAMING -> FINALIZING -> CLOSED,
// or STREAMING -> ABORTED -> CLOSED when the client goes away or the upstream breaks.
package relay

import (
	"context"
	"errors"
	"fmt"

	"magic-collection-be/pkg/llm"

	"github.com/google/uuid"
)

var (
	// ErrPersistence wraps any store failure. It is fatal only while resolving the history.
	ErrPersistence = errors.New("persistence error")

	// ErrHistoryNotFound is returned when a supplied history id is not owned by the caller.
	ErrHistoryNotFound = errors.New("history not found")

	// ErrClientDisconnected is returned by Relay when the session was aborted from the client side.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrUpstreamInterrupted is returned by Relay when the model stream broke after output began.
	ErrUpstreamInterrupted = errors.New("upstream stream interrupted")
)

// HistorySentinel is written ahead of any model text when a history was created for this relay.
func HistorySentinel(historyId uuid.UUID) string {
	return fmt.Sprintf("/historyId:%s/", historyId)
}

type State int32

const (
	StateInit State = iota
	StateResolvingHistory
	StateStreaming
	StateFinalizing
	StateAborted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateResolvingHistory:
		return "RESOLVING_HISTORY"
	case StateStreaming:
		return "STREAMING"
	case StateFinalizing:
		return "FINALIZING"
	case StateAborted:
		return "ABORTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Request is a validated prompt entering the relay.
type Request struct {
	Prompt    string
	OwnerId   uuid.UUID
	HistoryId *uuid.UUID
}

// ContextExchange is a prior turn used to seed the model.
type ContextExchange struct {
	Prompt string
	Answer string
}

// ExchangeCompleted is the background work emitted when a relay finishes normally.
type ExchangeCompleted struct {
	HistoryId uuid.UUID `json:"history_id"`
	OwnerId   uuid.UUID `json:"owner_id"`
	Prompt    string    `json:"prompt"`
	Answer    string    `json:"answer"`
}

// HistoryAbandoned is the background work emitted when a freshly created history
// never received an exchange.
type HistoryAbandoned struct {
	HistoryId uuid.UUID `json:"history_id"`
	OwnerId   uuid.UUID `json:"owner_id"`
}

// ConversationStore is the persistence the relay and its bookkeeping rely on.
type ConversationStore interface {
	CreateHistory(ctx context.Context, ownerId uuid.UUID) (uuid.UUID, error)
	HistoryExists(ctx context.Context, historyId, ownerId uuid.UUID) (bool, error)
	LoadContextExchanges(ctx context.Context, historyId, ownerId uuid.UUID) ([]ContextExchange, error)
	AppendExchange(ctx context.Context, historyId, ownerId uuid.UUID, prompt, answer string) error
	IncrementMessageCount(ctx context.Context, historyId uuid.UUID) (isFirstMessage bool, err error)
	RenameHistory(ctx context.Context, historyId uuid.UUID, name string) error
	TouchHistory(ctx context.Context, historyId uuid.UUID) error
	DeleteIfEmpty(ctx context.Context, historyId uuid.UUID) error
}

// ModelStreamer opens an upstream token stream.
type ModelStreamer interface {
	OpenStream(ctx context.Context, history []llm.Message, options ...llm.Option) (llm.Stream, error)
}

// Dispatcher schedules bookkeeping off the relay path. Implementations must not block
// on the bookkeeping itself.
type Dispatcher interface {
	DispatchCompleted(ctx context.Context, evt ExchangeCompleted) error
	DispatchAbandoned(ctx context.Context, evt HistoryAbandoned) error
}

// Sink is the client side of a relay.
type Sink interface {
	// Write forwards text to the client. An error means the client is gone.
	Write(text string) error
	// Closed is signalled when the transport notices a disconnect on its own.
	// Transports that only detect disconnects on write return nil.
	Closed() <-chan struct{}
}

// SessionRegistry tracks in-flight sessions. Optional.
type SessionRegistry interface {
	Register(s *StreamSession)
	Remove(sessionId uuid.UUID)
}

// EventPublisher announces bookkeeping outcomes. Optional.
type EventPublisher interface {
	PublishExchangeCompleted(ctx context.Context, evt ExchangeCompleted)
	PublishHistoryAbandoned(ctx context.Context, evt HistoryAbandoned)
}

// BuildMessages lays out the upstream conversation: system prompt, each prior
// exchange as a user/assistant pair, then the new prompt.
func BuildMessages(systemPrompt string, prior []ContextExchange, prompt string) []llm.Message {
	messages := make([]llm.Message, 0, len(prior)*2+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, ex := range prior {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: ex.Prompt},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Answer},
		)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})
	return messages
}
