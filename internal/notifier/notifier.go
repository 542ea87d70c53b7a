// Package notifier implements the Notifier service: drains the durable
// notification queue, uploads artifacts/logs to the backend with bounded
// retries, and cleans the job workspace (spec §4.5).
package notifier

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fleetforge/compiler-worker/internal/backendclient"
	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/ledger"
	"github.com/fleetforge/compiler-worker/internal/logfields"
	"github.com/fleetforge/compiler-worker/internal/metrics"
	"github.com/fleetforge/compiler-worker/internal/notifyqueue"
	"github.com/fleetforge/compiler-worker/internal/observability"
	"github.com/fleetforge/compiler-worker/internal/types"
)

const maxRetries = 20

// Notifier drains one message per iteration from consumer.
type Notifier struct {
	Consumer    *notifyqueue.Consumer
	Backend     *backendclient.Client
	ProjectsDir string
	Env         config.Environment
	Machine     string
	Metrics     metrics.Recorder
	Ledger      *ledger.Ledger // optional; nil disables audit trail
}

// New constructs a Notifier. If m is nil, a NoopRecorder is used.
func New(consumer *notifyqueue.Consumer, backend *backendclient.Client, projectsDir string, env config.Environment, machine string, m metrics.Recorder, l *ledger.Ledger) *Notifier {
	if m == nil {
		m = metrics.NoopRecorder{}
	}
	return &Notifier{Consumer: consumer, Backend: backend, ProjectsDir: projectsDir, Env: env, Machine: machine, Metrics: m, Ledger: l}
}

// RunIteration drains and processes at most one message, per spec §4.5.
func (n *Notifier) RunIteration(ctx context.Context) error {
	msg, err := n.Consumer.Dequeue(ctx)
	if err != nil {
		return fmt.Errorf("dequeue: %w", err)
	}
	if msg == nil {
		return nil // empty, idle
	}

	if msg.Malformed() {
		observability.WarnContext(ctx, "malformed notification, dropping")
		return msg.Discard()
	}

	notif := msg.Notification
	ctx = observability.WithJobCode(ctx, notif.Code)
	ctx = observability.WithPlatform(ctx, string(notif.Platform))

	if msg.Tries() > maxRetries {
		n.Metrics.IncNotifierDiscard()
		observability.WarnContext(ctx, "exceeded max retries, discarding", logfields.Tries(msg.Tries()))
		if n.Ledger != nil {
			if err := n.Ledger.RecordDiscard(ctx, notif, msg.Tries()); err != nil {
				observability.WarnContext(ctx, "failed to record discard", logfields.Error(err))
			}
		}
		if err := msg.Discard(); err != nil {
			return err
		}
		n.cleanWorkspace(ctx, notif)
		return nil
	}

	if err := msg.Ping(); err != nil {
		return fmt.Errorf("ping visibility: %w", err)
	}

	ws := types.NewWorkspaceFor(n.ProjectsDir, notif.Code, notif.StartTime)
	resp, err := n.Backend.PostResult(ctx, notif.Code, backendclient.ResultUpload{
		Platform:    notif.Platform,
		UserError:   notif.MsgPublic,
		StaffError:  notif.MsgInternal,
		Machine:     n.Machine,
		ArtifactZip: firstArtifact(ws.OutDir()),
		StdoutLog:   ws.StdoutLog(),
	})
	if err != nil {
		n.Metrics.IncNotifierRetry()
		observability.WarnContext(ctx, "artifact post failed, leaving in flight", logfields.Error(err))
		return nil // spec §4.5 step 7: leave in-flight, redelivered after window
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		n.Metrics.IncNotifierRetry()
		observability.WarnContext(ctx, "artifact post rejected, leaving in flight", logfields.Status(resp.StatusCode))
		return nil
	}

	if err := msg.Ack(); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	if n.Ledger != nil {
		if err := n.Ledger.RecordOutcome(ctx, notif); err != nil {
			observability.WarnContext(ctx, "failed to record outcome", logfields.Error(err))
		}
	}
	n.cleanWorkspace(ctx, notif)
	return nil
}

// firstArtifact returns the path to the first .zip file in dir, or "" if dir
// holds none or is absent. The pack stage writes exactly one artifact zip;
// the Apple backends also leave their archive and export output in out/.
func firstArtifact(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".zip" {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// cleanWorkspace removes the job's workspace directory, except in DEVELOP
// where workspaces are preserved for inspection (spec §3 "Environment").
func (n *Notifier) cleanWorkspace(ctx context.Context, notif *types.Notification) {
	if n.Env.RetainWorkspaces() {
		return
	}
	ws := types.NewWorkspaceFor(n.ProjectsDir, notif.Code, notif.StartTime)
	if err := os.RemoveAll(ws.Root); err != nil {
		observability.WarnContext(ctx, "failed to clean workspace", logfields.Error(err))
	}
}
