package chat

import "context"

// Deliverer sends a message to a chat channel. Splitting long messages and
// handling send failures is up to the implementation.
type Deliverer interface {
	Deliver(ctx context.Context, channelName string, message string) error
}
