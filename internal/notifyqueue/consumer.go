package notifyqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/fleetforge/compiler-worker/internal/types"
)

// Consumer drains the durable pull consumer for the Notifier, per spec
// §4.5. Message is a dequeued notification paired with its underlying
// jetstream.Msg so the caller can ack/ping/term it.
type Consumer struct {
	consumer jetstream.Consumer
}

// Message pairs a decoded Notification with the raw queue message for
// ack/ping/term control.
type Message struct {
	Notification *types.Notification
	raw          jetstream.Msg
	malformed    bool
}

// Tries returns how many times this message has been delivered, per spec
// §4.5's "if tries > 20" check.
func (m *Message) Tries() int {
	meta, err := m.raw.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

// Malformed reports whether the message failed to decode into a
// Notification with a code, per spec §4.5 step 3.
func (m *Message) Malformed() bool { return m.malformed }

// Ping extends the message's visibility window without redelivering it.
func (m *Message) Ping() error { return m.raw.InProgress() }

// Ack permanently removes the message from the queue.
func (m *Message) Ack() error { return m.raw.Ack() }

// Discard permanently removes the message without it ever being
// redelivered again (spec §4.5 step 2, MAX_RETRIES_NUMBER exceeded).
func (m *Message) Discard() error { return m.raw.Term() }

// NewConsumer attaches to the embedded queue's durable consumer.
func NewConsumer(ctx context.Context, e *Embedded) (*Consumer, error) {
	c, err := e.stream.Consumer(ctx, consumerName)
	if err != nil {
		return nil, fmt.Errorf("attach durable consumer: %w", err)
	}
	return &Consumer{consumer: c}, nil
}

// Dequeue fetches at most one message, per spec §4.5's "one message per
// iteration." Returns nil, nil if the queue is currently empty.
func (c *Consumer) Dequeue(ctx context.Context) (*Message, error) {
	batch, err := c.consumer.Fetch(1, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch from queue: %w", err)
	}

	for raw := range batch.Messages() {
		var n types.Notification
		if err := json.Unmarshal(raw.Data(), &n); err != nil || n.Code == "" {
			return &Message{raw: raw, malformed: true}, nil
		}
		return &Message{Notification: &n, raw: raw}, nil
	}
	return nil, batch.Error()
}
