// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Message is one delivered queue message. Attempts reports how many times
// the broker has delivered it, read from broker metadata so the count
// survives redelivery to a different consumer instance.
type Message interface {
	Subject() string
	Data() []byte
	CorrelationID() string
	// ReplyTo is the subject the publisher wants results on; empty when
	// the publisher set none.
	ReplyTo() string
	Attempts() int

	// Ack acknowledges successful processing.
	Ack() error
	// Nak requests redelivery.
	Nak() error
	// Term stops redelivery. Used after routing a message to the DLQ.
	Term() error
}

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, msg Message) error

// PublishOptions carry per-message metadata. Messages are always persisted
// by the broker before Publish returns.
type PublishOptions struct {
	CorrelationID string
	ReplyTo       string
}

// ConsumeOptions bound a consumer's parallelism.
type ConsumeOptions struct {
	// Prefetch is the maximum number of unacknowledged messages in flight.
	Prefetch int
}

// Queue is the port interface for publishing and consuming messages.
type Queue interface {
	// Publish sends a persistent message to the given subject.
	Publish(ctx context.Context, subject string, data []byte, opts PublishOptions) error

	// Consume registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Consume(ctx context.Context, subject string, handler Handler, opts ConsumeOptions) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for queue subjects used by TaskPilot.
const (
	SubjectTaskDispatch = "tasks.dispatch"      // router → agent worker pool
	SubjectTaskResult   = "tasks.result"        // reply-to destination for workers
	SubjectTaskDead     = "tasks.dispatch.dead" // messages exceeding the retry budget
)
