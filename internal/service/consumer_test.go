package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/TaskPilot/internal/port/messagequeue"
)

func dispatchMsg(t *testing.T, attempts int) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(messagequeue.TaskDispatchPayload{
		TaskID: "task-1", SessionID: "sess-1", ProjectID: "p1",
		Context: messagequeue.ExecutionContext{Title: "fix login", RunnerType: "claude"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fakeMsg{
		subject:  messagequeue.SubjectTaskDispatch,
		data:     data,
		corrID:   "corr-1",
		attempts: attempts,
	}
}

func TestConsumerAcksOnSuccess(t *testing.T) {
	queue := &fakeQueue{}
	var got messagequeue.TaskDispatchPayload
	c := NewQueueConsumer(queue, func(_ context.Context, p messagequeue.TaskDispatchPayload, _ string) error {
		got = p
		return nil
	}, 4, 3)

	msg := dispatchMsg(t, 1)
	if err := c.handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if !msg.acked || msg.naked || msg.termed {
		t.Fatalf("ack=%v nak=%v term=%v", msg.acked, msg.naked, msg.termed)
	}
	if got.TaskID != "task-1" {
		t.Fatalf("handler payload: %+v", got)
	}
	if len(queue.published) != 0 {
		t.Fatal("nothing may reach the dead letter subject")
	}
}

func TestConsumerPassesReplyToThrough(t *testing.T) {
	queue := &fakeQueue{}
	var gotReply string
	c := NewQueueConsumer(queue, func(_ context.Context, _ messagequeue.TaskDispatchPayload, replyTo string) error {
		gotReply = replyTo
		return nil
	}, 4, 3)

	msg := dispatchMsg(t, 1)
	msg.replyTo = messagequeue.SubjectTaskResult
	if err := c.handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if gotReply != messagequeue.SubjectTaskResult {
		t.Fatalf("reply subject: %q", gotReply)
	}
}

func TestConsumerNaksBelowRetryLimit(t *testing.T) {
	queue := &fakeQueue{}
	c := NewQueueConsumer(queue, func(context.Context, messagequeue.TaskDispatchPayload, string) error {
		return errors.New("worker busy")
	}, 4, 3)

	msg := dispatchMsg(t, 2)
	if err := c.handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if !msg.naked || msg.acked || msg.termed {
		t.Fatalf("ack=%v nak=%v term=%v", msg.acked, msg.naked, msg.termed)
	}
	if len(queue.published) != 0 {
		t.Fatal("message below the limit must not be dead lettered")
	}
}

func TestConsumerDeadLettersAtRetryLimit(t *testing.T) {
	queue := &fakeQueue{}
	c := NewQueueConsumer(queue, func(context.Context, messagequeue.TaskDispatchPayload, string) error {
		return errors.New("worker busy")
	}, 4, 3)

	msg := dispatchMsg(t, 3)
	if err := c.handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if !msg.termed || msg.naked || msg.acked {
		t.Fatalf("ack=%v nak=%v term=%v", msg.acked, msg.naked, msg.termed)
	}

	if len(queue.published) != 1 {
		t.Fatalf("dead letter publishes: %d", len(queue.published))
	}
	dl := queue.published[0]
	if dl.Subject != messagequeue.SubjectTaskDead {
		t.Fatalf("subject: %q", dl.Subject)
	}
	var dead messagequeue.DeadLetterPayload
	if err := json.Unmarshal(dl.Data, &dead); err != nil {
		t.Fatal(err)
	}
	if dead.Attempts != 3 {
		t.Fatalf("attempt counter must come from broker metadata, got %d", dead.Attempts)
	}
	if dead.Subject != messagequeue.SubjectTaskDispatch || dead.CorrelationID != "corr-1" {
		t.Fatalf("dead letter: %+v", dead)
	}
	if len(dead.Data) == 0 {
		t.Fatal("original payload must travel with the dead letter")
	}
}

func TestConsumerDeadLettersMalformedImmediately(t *testing.T) {
	queue := &fakeQueue{}
	handled := false
	c := NewQueueConsumer(queue, func(context.Context, messagequeue.TaskDispatchPayload, string) error {
		handled = true
		return nil
	}, 4, 3)

	msg := &fakeMsg{subject: messagequeue.SubjectTaskDispatch, data: []byte("{not json"), corrID: "corr-2", attempts: 1}
	if err := c.handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if handled {
		t.Fatal("handler must not see malformed payloads")
	}
	if !msg.termed {
		t.Fatal("malformed message must be terminated")
	}
	if len(queue.published) != 1 || queue.published[0].Subject != messagequeue.SubjectTaskDead {
		t.Fatal("malformed message must be dead lettered once")
	}
}

func TestConsumerKeepsMessageWhenDeadLetterPublishFails(t *testing.T) {
	queue := &fakeQueue{failWith: errors.New("broker unavailable")}
	c := NewQueueConsumer(queue, func(context.Context, messagequeue.TaskDispatchPayload, string) error {
		return errors.New("worker busy")
	}, 4, 3)

	msg := dispatchMsg(t, 3)
	if err := c.handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if msg.termed {
		t.Fatal("message must not be terminated when the dead letter copy is lost")
	}
	if !msg.naked {
		t.Fatal("message must be requeued for another delivery")
	}
}
