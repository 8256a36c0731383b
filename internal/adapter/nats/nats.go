// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/TaskPilot/internal/port/messagequeue"
)

const streamName = "TASKPILOT"

// Header names for per-message metadata.
const (
	headerCorrelationID = "Taskpilot-Correlation-Id"
	headerReplyTo       = "Taskpilot-Reply-To"
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our topic patterns.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"tasks.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a persistent message to the given subject. JetStream stores
// the message before the publish ack returns.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte, opts messagequeue.PublishOptions) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if opts.CorrelationID != "" {
		msg.Header.Set(headerCorrelationID, opts.CorrelationID)
	}
	if opts.ReplyTo != "" {
		msg.Header.Set(headerReplyTo, opts.ReplyTo)
	}

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// jsMessage adapts a jetstream.Msg to the messagequeue.Message interface.
type jsMessage struct {
	msg jetstream.Msg
}

func (m *jsMessage) Subject() string { return m.msg.Subject() }
func (m *jsMessage) Data() []byte    { return m.msg.Data() }

func (m *jsMessage) CorrelationID() string {
	return m.msg.Headers().Get(headerCorrelationID)
}

func (m *jsMessage) ReplyTo() string {
	return m.msg.Headers().Get(headerReplyTo)
}

// Attempts reads the delivery count from JetStream metadata, so the count
// travels with the message across consumer instances.
func (m *jsMessage) Attempts() int {
	meta, err := m.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (m *jsMessage) Ack() error  { return m.msg.Ack() }
func (m *jsMessage) Nak() error  { return m.msg.Nak() }
func (m *jsMessage) Term() error { return m.msg.Term() }

// Consume registers a handler for messages on the given subject. Prefetch
// maps to the consumer's max unacknowledged messages in flight; the handler
// (not the broker) decides between Nak for retry and Term after DLQ routing.
func (q *Queue) Consume(ctx context.Context, subject string, handler messagequeue.Handler, opts messagequeue.ConsumeOptions) (func(), error) {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    -1,
	}
	if opts.Prefetch > 0 {
		cfg.MaxAckPending = opts.Prefetch
	}

	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, &jsMessage{msg: msg}); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// KeyValue returns the named JetStream KV bucket, creating it with the
// given per-entry TTL when missing.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain gracefully drains all subscriptions before closing.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the connection is currently up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.IsConnected()
}
