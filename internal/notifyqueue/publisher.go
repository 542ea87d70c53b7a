package notifyqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetforge/compiler-worker/internal/types"
)

// Publisher enqueues terminal job notifications onto the stream, per spec
// §4.3 step 7.
type Publisher struct{ e *Embedded }

// NewPublisher wraps an already-started Embedded queue.
func NewPublisher(e *Embedded) *Publisher { return &Publisher{e: e} }

// Publish enqueues n. An enqueue always follows a terminal build-child
// state, per spec §3's notification invariant.
func (p *Publisher) Publish(ctx context.Context, n *types.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = p.e.js.Publish(ctx, subjectName, data)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
