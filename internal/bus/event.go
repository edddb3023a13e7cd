package bus

import "time"

// Event kinds published by the client core. Subscribers filter by prefix,
// e.g. "connection." or "message.".
const (
	ConnectionStatusChanged = "connection.status_changed"

	OutboxQueued         = "outbox.queued"
	OutboxDelivered      = "outbox.delivered"
	OutboxRetryScheduled = "outbox.retry_scheduled"
	OutboxMessageFailed  = "outbox.message_failed"
	OutboxChanged        = "outbox.changed"

	MessageUpserted = "message.upserted"

	TypingChanged = "typing.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// NewEvent stamps an event with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
