// Package conversation implements the menu-driven booking conversation: the
// top-level state machine, the registration completeness wizard and the slot
// selection/confirmation sub-flow.
package conversation

import "context"

// InboundEvent is one normalized user message, as delivered by the channel
// transport.
type InboundEvent struct {
	// UserID is the phone-like identifier of the sender.
	UserID string
	// Text is the transport-normalized message body or button reply id.
	Text string
	// RoutingHint tells the outbound gateway which channel endpoint to use.
	// It may be absent on any given event, so the session caches it.
	RoutingHint string
}

// Choice is one option of a multiple-choice prompt.
type Choice struct {
	ID    string
	Label string
}

// Messenger delivers replies back to the end user. The engine never depends
// on the transport's wire format, only on these two operations.
type Messenger interface {
	SendText(ctx context.Context, userID, body string) error
	SendChoices(ctx context.Context, userID, body string, choices []Choice) error
}
