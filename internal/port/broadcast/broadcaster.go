// Package broadcast defines the port for pushing real-time run updates to
// connected dashboard clients.
package broadcast

import "context"

// Broadcaster sends typed events to all connected clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Nop is a Broadcaster that discards everything; used when no dashboard is
// attached (CLI mode, tests).
type Nop struct{}

// BroadcastEvent implements Broadcaster.
func (Nop) BroadcastEvent(context.Context, string, any) {}
