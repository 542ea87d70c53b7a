// Package builder implements the Builder service: pulls one job at a time,
// spawns an isolated build child to run the platform pipeline, enforces
// the watchdog, and enqueues a terminal notification (spec §4.3).
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/fleetforge/compiler-worker/internal/backendclient"
	"github.com/fleetforge/compiler-worker/internal/diskpressure"
	"github.com/fleetforge/compiler-worker/internal/ipc"
	"github.com/fleetforge/compiler-worker/internal/logfields"
	"github.com/fleetforge/compiler-worker/internal/metrics"
	"github.com/fleetforge/compiler-worker/internal/notifyqueue"
	"github.com/fleetforge/compiler-worker/internal/observability"
	"github.com/fleetforge/compiler-worker/internal/platform"
	"github.com/fleetforge/compiler-worker/internal/types"
	"github.com/fleetforge/compiler-worker/internal/updater"
	"github.com/fleetforge/compiler-worker/internal/workererrors"
)

const cordovaLogTailBytes = 10_000

// Builder drives one job at a time through a spawned build child.
type Builder struct {
	ProjectsDir  string
	DataDir      string
	WorkerBinary string // path to this binary, re-exec'd as `buildchild`
	Backend      *backendclient.Client
	Queue        *notifyqueue.Publisher
	DiskChecker  *diskpressure.Checker
	Metrics      metrics.Recorder
}

// New constructs a Builder. If m is nil, a NoopRecorder is used.
func New(projectsDir, dataDir, workerBinary string, backend *backendclient.Client, q *notifyqueue.Publisher, dp *diskpressure.Checker, m metrics.Recorder) *Builder {
	if m == nil {
		m = metrics.NoopRecorder{}
	}
	return &Builder{ProjectsDir: projectsDir, DataDir: dataDir, WorkerBinary: workerBinary, Backend: backend, Queue: q, DiskChecker: dp, Metrics: m}
}

// RunIteration executes one poll cycle, per spec §4.3. jobOverride is used
// in one-shot mode (config.json already on disk at a caller-supplied
// path); nil selects daemon fetch.
func (b *Builder) RunIteration(ctx context.Context, jobOverride *types.Job) error {
	if !updater.Ready(b.DataDir) {
		observability.DebugContext(ctx, "cache not ready, skipping iteration")
		return nil
	}

	if b.DiskChecker != nil {
		if err := b.DiskChecker.CheckAndPurge(ctx); err != nil {
			observability.WarnContext(ctx, "disk pressure check failed", logfields.Error(err))
		}
	}

	if err := os.MkdirAll(b.ProjectsDir, 0o755); err != nil {
		return fmt.Errorf("ensure projects dir: %w", err)
	}

	job, err := b.fetchJob(ctx, jobOverride)
	if err != nil {
		return err
	}
	if job == nil {
		return nil // no job available
	}
	job.AssignPlatform()
	job.StartTime = types.NowMillis()

	ctx = observability.WithJobCode(ctx, job.Code)
	ctx = observability.WithPlatform(ctx, string(job.Platform))

	ws := types.NewWorkspace(b.ProjectsDir, job)
	if err := b.persistJob(ws, job); err != nil {
		return err
	}

	start := time.Now()
	result := b.runBuildChild(ctx, ws, job)
	b.Metrics.ObserveJobDuration(string(job.Platform), time.Since(start))

	notif := &types.Notification{Code: job.Code, Platform: job.Platform, StartTime: job.StartTime, CorrelationID: uuid.NewString()}
	if !result.Success() {
		notif.MsgInternal = result.Message
		notif.MsgPublic = result.MsgPublic
		b.Metrics.IncJobOutcome(string(job.Platform), metrics.JobOutcomeFailed)
	} else {
		b.Metrics.IncJobOutcome(string(job.Platform), metrics.JobOutcomeSuccess)
	}

	if err := b.Queue.Publish(ctx, notif); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (b *Builder) fetchJob(ctx context.Context, override *types.Job) (*types.Job, error) {
	if override != nil {
		return override, nil
	}
	job, err := b.Backend.FetchJob(ctx, platform.LocalPlatforms())
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	if err := job.Validate(); err != nil {
		return nil, workererrors.Wrap(err, workererrors.CategoryInput, workererrors.SeverityWarning, "malformed job").Public(err.Error())
	}
	return job, nil
}

func (b *Builder) persistJob(ws *types.Workspace, job *types.Job) error {
	if err := os.MkdirAll(ws.Root, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	// Atomic write: the workspace-exists invariant (spec §3) requires
	// config.json be fully written before any later stage observes it.
	tmp := ws.ConfigJSON() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, ws.ConfigJSON())
}

// runBuildChild spawns the build child, races its IPC message against its
// exit, against the watchdog, and against a spawn error — whichever fires
// first is authoritative (spec §4.3 step 6, §9).
func (b *Builder) runBuildChild(ctx context.Context, ws *types.Workspace, job *types.Job) ipc.Result {
	latch := newOnceLatch()

	ipcReader, ipcWriter, err := os.Pipe()
	if err != nil {
		return ipc.Result{Message: err.Error(), MsgPublic: "internal error starting build"}
	}
	defer ipcReader.Close()

	stdoutLog, err := os.Create(ws.StdoutLog())
	if err != nil {
		ipcWriter.Close()
		return ipc.Result{Message: err.Error(), MsgPublic: "internal error starting build"}
	}
	defer stdoutLog.Close()

	cmd := exec.CommandContext(context.Background(), b.WorkerBinary, "buildchild",
		"--json", ws.ConfigJSON(), "--path", ws.Root)
	cmd.Stdout = redactingWriter{w: stdoutLog, ws: ws.Root}
	cmd.Stderr = redactingWriter{w: stdoutLog, ws: ws.Root}
	cmd.ExtraFiles = []*os.File{ipcWriter}

	if err := cmd.Start(); err != nil {
		ipcWriter.Close()
		return ipc.Result{Message: err.Error(), MsgPublic: "internal error starting build"}
	}
	ipcWriter.Close() // parent's copy; child holds the other end via ExtraFiles

	b.Metrics.SetWorking("builder", true)
	defer b.Metrics.SetWorking("builder", false)

	go func() {
		res, err := ipc.ReadResult(ipcReader)
		if err != nil {
			return // child exited without writing; exit-path resolves instead
		}
		latch.resolve(resolution{source: "ipc", ipcResult: res})
	}()

	go func() {
		err := cmd.Wait()
		latch.resolve(resolution{source: "exit", err: err})
	}()

	watchdog := time.AfterFunc(watchdogDuration, func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		latch.resolve(resolution{source: "watchdog"})
	})
	defer watchdog.Stop()

	res := latch.wait()
	return b.resolveResult(res, cmd, ws)
}

func (b *Builder) resolveResult(res resolution, cmd *exec.Cmd, ws *types.Workspace) ipc.Result {
	var result ipc.Result
	switch res.source {
	case "ipc":
		result = res.ipcResult
	case "watchdog":
		result = ipc.Result{
			Message:   "Compilation took too long, killing...",
			MsgPublic: "The compilation exceed the designated time.",
		}
	case "exit":
		if res.err == nil {
			result = ipc.Result{} // clean exit with no prior IPC message: treat as success
		} else {
			result = ipc.Result{
				Message:   fmt.Sprintf("Process exited abnormally (%s): %v", cmd.ProcessState, res.err),
				MsgPublic: fmt.Sprintf("Process exited abnormally (%s): %v", cmd.ProcessState, res.err),
			}
		}
	case "spawn_error":
		result = ipc.Result{Message: res.err.Error(), MsgPublic: res.err.Error()}
	}

	if !result.Success() {
		result.MsgPublic = result.MsgPublic + "\nCORDOVA LOG:" + tailFile(ws.CordovaLog(), cordovaLogTailBytes)
	}
	return result
}

func tailFile(path string, n int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ""
	}
	offset := int64(0)
	if info.Size() > n {
		offset = info.Size() - n
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return ""
	}
	return string(buf)
}

var homeDirRedact = regexp.MustCompile(`(?i)(/home/[^/\s]+|/Users/[^/\s]+|C:\\Users\\[^\\\s]+)`)

// redactingWriter strips workspace and home-directory absolute paths from
// child output before it reaches stdout.log, per spec §4.3 step 4.
type redactingWriter struct {
	w  *os.File
	ws string
}

func (r redactingWriter) Write(p []byte) (int, error) {
	s := string(p)
	s = homeDirRedact.ReplaceAllString(s, "~")
	if r.ws != "" {
		s = regexp.MustCompile(regexp.QuoteMeta(r.ws)).ReplaceAllString(s, filepath.Base(r.ws))
	}
	_, err := r.w.WriteString(s)
	return len(p), err
}

