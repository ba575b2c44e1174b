// Package broadcast defines the live-event fan-out port (interface).
package broadcast

import "context"

// Broadcaster pushes call events to connected dashboard clients.
type Broadcaster interface {
	// Broadcast sends an event to every client subscribed to the call.
	Broadcast(ctx context.Context, msgType, callID string, payload any)

	// ConnectionCount returns the number of active client connections.
	ConnectionCount() int
}
