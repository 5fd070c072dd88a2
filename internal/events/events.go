package events

import "context"

// Streams
const (
	StreamEscrow = "events:escrow"
)

// Event types
const (
	EventApprovalAdded       = "approval_added"
	EventApprovalCancelled   = "approval_cancelled"
	EventEscrowStatusChanged = "escrow_status_changed"
	EventRegistrationFailed  = "registration_failed"
	EventEscrowExecuted      = "escrow_executed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
