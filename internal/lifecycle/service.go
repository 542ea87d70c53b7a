package lifecycle

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/fleetforge/compiler-worker/internal/backendclient"
	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/logfields"
	"github.com/fleetforge/compiler-worker/internal/observability"
)

const heartbeatInterval = 60 * time.Second
const stopPollInterval = 5 * time.Second

// Iteration is one service-specific loop body. A non-nil error is logged
// and swallowed — per spec §4.1, an unhandled iteration error must never
// crash the service.
type Iteration func(ctx context.Context) error

// Service is the state machine and supporting scaffolding every sibling
// service embeds: registration, heartbeat, the working lock, and a
// cooperative stop that waits out an in-flight iteration.
type Service struct {
	ID       string
	Env      config.Environment
	Workdir  string // workspace root; {id}.lock lives here
	Interval time.Duration
	Backend  *backendclient.Client
	Run      Iteration

	state   atomic.Value // State
	working atomic.Bool

	mu        sync.Mutex
	scheduler gocron.Scheduler
	loopJob   gocron.Job
	heartJob  gocron.Job
	cancel    context.CancelFunc
	ip        string
	startedAt time.Time
}

// StartedAt returns when Start was called, the zero Time if not yet started.
func (s *Service) StartedAt() time.Time { return s.startedAt }

// New constructs a Service in the Created state. Run must be set by the
// caller before Start.
func New(id string, env config.Environment, workdir string, interval time.Duration, backend *backendclient.Client) *Service {
	s := &Service{ID: id, Env: env, Workdir: workdir, Interval: interval, Backend: backend}
	s.state.Store(StateCreated)
	return s
}

// State returns the service's current lifecycle state.
func (s *Service) State() State { return s.state.Load().(State) }

// Working reports whether the service is currently inside an iteration.
func (s *Service) Working() bool { return s.working.Load() }

// lockPath is the zero-byte file whose existence advertises in-flight
// state to the Admin API (spec §3 "Service-working lock").
func (s *Service) lockPath() string {
	return filepath.Join(s.Workdir, s.ID+".lock")
}

// startedFilePath holds this service's start time as a Unix-millis string.
// The Admin API runs as its own process and has no in-memory access to a
// sibling service's Service value, so StartedAt is republished to disk for
// it to read (spec §4.6 "started").
func (s *Service) startedFilePath() string {
	return filepath.Join(s.Workdir, s.ID+".started")
}

// setWorking flips working state and atomically creates/removes the
// lockfile, per spec §4.1.
func (s *Service) setWorking(working bool) error {
	s.working.Store(working)
	if working {
		f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create working lock: %w", err)
		}
		return f.Close()
	}
	if err := os.Remove(s.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove working lock: %w", err)
	}
	return nil
}

// Start performs service-specific initialization, registers with the
// backend (skipped in DEVELOP), and begins the periodic loop and the 60s
// heartbeat. daemon selects daemon mode (registration + looping) versus a
// one-shot caller that drives Run directly.
func (s *Service) Start(ctx context.Context, daemon bool) error {
	s.state.Store(StateStarting)
	s.startedAt = time.Now()

	if err := os.MkdirAll(s.Workdir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	if err := os.WriteFile(s.startedFilePath(), []byte(strconv.FormatInt(s.startedAt.UnixMilli(), 10)), 0o644); err != nil {
		observability.WarnContext(ctx, "failed to publish start time", logfields.Error(err))
	}

	ip, err := externalIP()
	if err != nil {
		observability.WarnContext(ctx, "could not determine external IP", logfields.Error(err))
	}
	s.ip = ip

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if daemon && s.Env != config.EnvDevelop && s.Backend != nil {
		if err := s.Backend.RegisterHost(runCtx, hostname(), ip, runtimeGOOS()); err != nil {
			observability.WarnContext(ctx, "host registration failed", logfields.Error(err))
		}
		if err := s.Backend.RegisterService(runCtx, ip, s.ID); err != nil {
			observability.WarnContext(ctx, "service registration failed", logfields.Error(err))
		}
	}

	if !daemon {
		s.state.Store(StateLooping)
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	s.mu.Lock()
	s.scheduler = sched
	s.mu.Unlock()

	loopJob, err := sched.NewJob(
		gocron.DurationJob(s.Interval),
		gocron.NewTask(func() { s.runIteration(runCtx) }),
	)
	if err != nil {
		return fmt.Errorf("schedule loop: %w", err)
	}

	var heartJob gocron.Job
	if s.Env != config.EnvDevelop && s.Backend != nil {
		heartJob, err = sched.NewJob(
			gocron.DurationJob(heartbeatInterval),
			gocron.NewTask(func() { s.sendHeartbeat(runCtx) }),
		)
		if err != nil {
			return fmt.Errorf("schedule heartbeat: %w", err)
		}
	}

	s.mu.Lock()
	s.loopJob, s.heartJob = loopJob, heartJob
	s.mu.Unlock()

	sched.Start()
	s.state.Store(StateLooping)
	return nil
}

func (s *Service) runIteration(ctx context.Context) {
	if err := s.setWorking(true); err != nil {
		observability.ErrorContext(ctx, "failed to acquire working lock", logfields.Error(err))
		return
	}
	defer func() {
		if err := s.setWorking(false); err != nil {
			observability.ErrorContext(ctx, "failed to release working lock", logfields.Error(err))
		}
	}()

	if err := s.Run(ctx); err != nil {
		// Logged at slog's error level, its most severe; there is no separate
		// FATAL level. The error never crashes the service.
		observability.ErrorContext(ctx, "iteration failed", logfields.Error(err))
	}
}

func (s *Service) sendHeartbeat(ctx context.Context) {
	if err := s.Backend.Heartbeat(ctx, s.ip, s.ID); err != nil {
		observability.WarnContext(ctx, "heartbeat failed", logfields.Error(err))
	}
}

// Stop is the idempotent cooperative shutdown of spec §4.1: if the service
// is currently working, reschedule every 5s until idle (a single timer, not
// a concurrently-leaking one — see SPEC_FULL Open Question (a)), then
// cancel the periodic jobs, deregister, and terminate.
func (s *Service) Stop(ctx context.Context) error {
	s.state.Store(StateStopping)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for s.Working() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(stopPollInterval)
		}
	}

	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			observability.WarnContext(ctx, "scheduler shutdown error", logfields.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}

	if s.Env != config.EnvDevelop && s.Backend != nil {
		if err := s.Backend.Deregister(ctx, s.ip, s.ID); err != nil {
			observability.WarnContext(ctx, "deregistration failed", logfields.Error(err))
		}
	}

	if err := os.Remove(s.startedFilePath()); err != nil && !os.IsNotExist(err) {
		observability.WarnContext(ctx, "failed to remove start-time file", logfields.Error(err))
	}

	s.state.Store(StateStopped)
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func runtimeGOOS() string { return runtime.GOOS }

// externalIP returns the host's outbound IP by opening a UDP "connection"
// to a public address without sending any packet, the conventional
// zero-dependency way to discover the default route's local address.
func externalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
