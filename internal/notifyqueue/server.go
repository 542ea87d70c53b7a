// Package notifyqueue embeds a durable NATS JetStream server in-process and
// binds it to the "notifications" stream, giving the Builder (publisher)
// and Notifier (durable pull consumer) at-least-once delivery with a
// visibility-timeout window, per spec §3 "Notification" and §9 "Queue"
// (SPEC_FULL §3).
package notifyqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fleetforge/compiler-worker/internal/config"
)

const streamName = "notifications"
const subjectName = "notifications.terminal"
const consumerName = "notifier"

// Embedded wraps an in-process NATS server plus the JetStream stream and
// durable pull consumer the Notifier drains.
type Embedded struct {
	srv    *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// Start boots the embedded server, connects a client, and ensures the
// stream/consumer exist with the configured visibility window
// (AckWait = VisibilityTTL) and max-delivery count (MaxRetries + 1).
func Start(ctx context.Context, cfg config.QueueConfig) (*Embedded, error) {
	opts := &server.Options{
		Port:      cfg.ClientPort,
		JetStream: true,
		StoreDir:  cfg.StoreDir,
		NoLog:     true,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats server: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectName},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("create notification stream: %w", err)
	}

	_, err = stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.VisibilityTTL,
		MaxDeliver:    cfg.MaxRetries + 1, // spec counts redeliveries past the first
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		nc.Close()
		srv.Shutdown()
		return nil, fmt.Errorf("create durable consumer: %w", err)
	}

	return &Embedded{srv: srv, nc: nc, js: js, stream: stream}, nil
}

// Close shuts down the client connection and the embedded server.
func (e *Embedded) Close() {
	if e.nc != nil {
		e.nc.Close()
	}
	if e.srv != nil {
		e.srv.Shutdown()
	}
}
