package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	tpotel "github.com/Strob0t/TaskPilot/internal/adapter/otel"
	"github.com/Strob0t/TaskPilot/internal/port/messagequeue"
)

// DispatchHandler processes one dispatched task message. replyTo is the
// subject the dispatcher wants the result on, empty when none was set.
type DispatchHandler func(ctx context.Context, payload messagequeue.TaskDispatchPayload, replyTo string) error

// QueueConsumer consumes dispatched task messages with bounded concurrency.
// The delivery-attempt counter travels with the message in broker metadata,
// so redelivery to a different consumer instance keeps counting; a message
// failing at or beyond the maximum is copied to the dead letter subject and
// terminated.
type QueueConsumer struct {
	queue      messagequeue.Queue
	handler    DispatchHandler
	prefetch   int
	maxRetries int
	metrics    *tpotel.Metrics
}

// NewQueueConsumer creates a consumer for tasks.dispatch.
func NewQueueConsumer(queue messagequeue.Queue, handler DispatchHandler, prefetch, maxRetries int) *QueueConsumer {
	return &QueueConsumer{
		queue:      queue,
		handler:    handler,
		prefetch:   prefetch,
		maxRetries: maxRetries,
	}
}

// SetMetrics installs the metric instruments. Optional; nil disables them.
func (c *QueueConsumer) SetMetrics(m *tpotel.Metrics) {
	c.metrics = m
}

// Start subscribes to the dispatch subject. The returned cancel function
// stops consumption.
func (c *QueueConsumer) Start(ctx context.Context) (func(), error) {
	cancel, err := c.queue.Consume(ctx, messagequeue.SubjectTaskDispatch, c.handle,
		messagequeue.ConsumeOptions{Prefetch: c.prefetch})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", messagequeue.SubjectTaskDispatch, err)
	}
	return cancel, nil
}

func (c *QueueConsumer) handle(ctx context.Context, msg messagequeue.Message) error {
	ctx, span := tpotel.StartConsumeSpan(ctx, msg.Subject(), msg.CorrelationID())
	defer span.End()

	var payload messagequeue.TaskDispatchPayload
	if err := json.Unmarshal(msg.Data(), &payload); err != nil {
		// Malformed messages never become processable; dead letter at once.
		slog.Error("malformed dispatch message",
			"correlation_id", msg.CorrelationID(), "error", err)
		return c.deadLetter(ctx, msg, fmt.Sprintf("malformed payload: %v", err))
	}

	if err := c.handler(ctx, payload, msg.ReplyTo()); err != nil {
		attempts := msg.Attempts()
		if attempts < c.maxRetries {
			slog.Warn("dispatch handler failed, requeueing",
				"task_id", payload.TaskID, "attempt", attempts, "error", err)
			if c.metrics != nil {
				c.metrics.QueueRetries.Add(ctx, 1)
			}
			return msg.Nak()
		}
		slog.Error("dispatch handler exhausted retries",
			"task_id", payload.TaskID, "attempts", attempts, "error", err)
		return c.deadLetter(ctx, msg, err.Error())
	}

	return msg.Ack()
}

// deadLetter copies the message to the DLQ subject, then terminates the
// original so the broker stops redelivering it.
func (c *QueueConsumer) deadLetter(ctx context.Context, msg messagequeue.Message, reason string) error {
	dead := messagequeue.DeadLetterPayload{
		Subject:       msg.Subject(),
		CorrelationID: msg.CorrelationID(),
		Attempts:      msg.Attempts(),
		Data:          msg.Data(),
		Reason:        reason,
	}
	data, err := json.Marshal(dead)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	err = c.queue.Publish(ctx, messagequeue.SubjectTaskDead, data, messagequeue.PublishOptions{
		CorrelationID: msg.CorrelationID(),
	})
	if err != nil {
		// Keep the message alive for redelivery rather than dropping it.
		slog.Error("publish to dead letter subject", "error", err)
		return msg.Nak()
	}
	if c.metrics != nil {
		c.metrics.DeadLettered.Add(ctx, 1)
	}
	return msg.Term()
}
