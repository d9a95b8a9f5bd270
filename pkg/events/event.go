package events

import "time"

const (
	TypeChatExchangeCompleted = "CHAT_EXCHANGE_COMPLETED"
	TypeChatHistoryAbandoned  = "CHAT_HISTORY_ABANDONED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_EXCHANGE_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the map-backed Event every publisher in this service emits.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Subject is the NATS subject an event is published on.
func Subject(e Event) string {
	return "events." + e.EventType()
}
