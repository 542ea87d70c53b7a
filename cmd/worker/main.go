package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/fleetforge/compiler-worker/internal/adminapi"
	"github.com/fleetforge/compiler-worker/internal/backendclient"
	"github.com/fleetforge/compiler-worker/internal/buildpipeline"
	"github.com/fleetforge/compiler-worker/internal/builder"
	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/diskpressure"
	"github.com/fleetforge/compiler-worker/internal/ipc"
	"github.com/fleetforge/compiler-worker/internal/ledger"
	"github.com/fleetforge/compiler-worker/internal/lifecycle"
	"github.com/fleetforge/compiler-worker/internal/metrics"
	"github.com/fleetforge/compiler-worker/internal/notifier"
	"github.com/fleetforge/compiler-worker/internal/notifyqueue"
	"github.com/fleetforge/compiler-worker/internal/objectstore"
	"github.com/fleetforge/compiler-worker/internal/platform"
	"github.com/fleetforge/compiler-worker/internal/types"
	"github.com/fleetforge/compiler-worker/internal/updater"
	"github.com/fleetforge/compiler-worker/internal/version"
	"github.com/fleetforge/compiler-worker/internal/workererrors"
)

// Set at build time with: -ldflags "-X main.buildVersion=1.0.0".
var buildVersion = "dev"

// CLI is the root command: one binary, six subcommands: init, one per service
// in the spec's process model, and the build child re-exec target.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"worker.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init       InitCmd       `cmd:"" help:"Scaffold an example worker.yaml"`
	Updater    UpdaterCmd    `cmd:"" help:"Run the dependency-cache Updater"`
	Builder    BuilderCmd    `cmd:"" help:"Run the Builder"`
	Notifier   NotifierCmd   `cmd:"" help:"Run the Notifier"`
	Admin      AdminCmd      `cmd:"" help:"Run the Admin API"`
	Buildchild BuildchildCmd `cmd:"" help:"(internal) run one build pipeline in an isolated child process" hidden:""`
}

// Global holds state shared across subcommands.
type Global struct {
	Logger *slog.Logger
}

// AfterApply installs a bootstrap logger before config is loaded; each
// subcommand reconfigures it from the loaded config's logging section.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func main() {
	cli := &CLI{}
	parser := kong.Parse(cli,
		kong.Description("compiler-worker: Cordova build-farm worker (updater/builder/notifier/admin)."),
		kong.Vars{"version": buildVersion + " (" + version.Version + ")"},
	)

	logger := slog.Default()
	errorAdapter := workererrors.NewCLIErrorAdapter(cli.Verbose, logger)
	globals := &Global{Logger: logger}

	if err := parser.Run(globals, cli); err != nil {
		errorAdapter.HandleError(err)
	}
}

// InitCmd scaffolds an example worker.yaml.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return err
	}
	fmt.Println("wrote", root.Config)
	return nil
}

// configureLogging installs the default logger, teeing output to
// workdir/{serviceID}.log so the Admin API's log endpoint (spec §4.6) has
// a file to tail. serviceID is empty for commands Admin itself doesn't
// report on (init, buildchild).
func configureLogging(cfg *config.Config, serviceID string) error {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}

	writer := io.Writer(os.Stderr)
	if serviceID != "" {
		if err := os.MkdirAll(workdir(cfg), 0o755); err != nil {
			return fmt.Errorf("create workdir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(workdir(cfg), serviceID+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open service log: %w", err)
		}
		writer = io.MultiWriter(os.Stderr, f)
	}

	var handler slog.Handler
	if cfg.Logging.Format == config.LogFormatText {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// watchConfig launches internal/config's fsnotify watcher in the
// background when running as a daemon with --watch-config, so an
// operator can change logging.level/logging.format without a restart.
// Stops on its own once ctx is cancelled.
func watchConfig(ctx context.Context, daemon, watch bool, configPath, serviceID string) {
	if !daemon || !watch {
		return
	}
	go func() {
		err := config.Watch(ctx, configPath, slog.Default(), func(cfg *config.Config) {
			if err := configureLogging(cfg, serviceID); err != nil {
				slog.Error("failed to apply reloaded config", "error", err)
			}
		})
		if err != nil {
			slog.Error("config watcher stopped", "error", err)
		}
	}()
}

func dataDir(cfg *config.Config) string     { return filepath.Join(cfg.WorkspaceDir, "data") }
func projectsDir(cfg *config.Config) string { return filepath.Join(cfg.WorkspaceDir, "projects") }
func workdir(cfg *config.Config) string     { return cfg.WorkspaceDir }

func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runService drives svc through Start/loop/Stop: one-shot in the
// foreground, or daemon mode blocking until a shutdown signal arrives.
func runService(ctx context.Context, svc *lifecycle.Service, daemon bool, oneShot func(context.Context) error) error {
	if err := svc.Start(ctx, daemon); err != nil {
		return fmt.Errorf("start %s: %w", svc.ID, err)
	}
	if !daemon {
		return oneShot(ctx)
	}
	<-ctx.Done()
	return svc.Stop(context.Background())
}

// UpdaterCmd runs the Updater service.
type UpdaterCmd struct {
	Daemon      bool `help:"Run continuously on the configured interval instead of once"`
	WatchConfig bool `help:"Reload logging configuration when the config file changes (daemon mode only)"`
}

func (u *UpdaterCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := configureLogging(cfg, "updater"); err != nil {
		return err
	}

	ctx, cancel := shutdownContext()
	defer cancel()

	watchConfig(ctx, u.Daemon, u.WatchConfig, root.Config, "updater")

	store, err := objectstore.New(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("connect object store: %w", err)
	}

	recorder := metrics.NewPrometheusRecorder(nil)
	var backend *backendclient.Client
	if cfg.Environment != config.EnvDevelop {
		backend = backendclient.New(cfg.Backend)
	}

	svc := lifecycle.New("updater", cfg.Environment, workdir(cfg), cfg.Intervals.UpdaterSync, backend)
	up := updater.New(dataDir(cfg), store, recorder)
	svc.Run = up.Sync

	return runService(ctx, svc, u.Daemon, up.Sync)
}

// BuilderCmd runs the Builder service.
type BuilderCmd struct {
	Daemon      bool   `help:"Run continuously on the configured interval instead of once"`
	Path        string `help:"One-shot mode: path to a directory already holding a config.json to build"`
	WatchConfig bool   `help:"Reload logging configuration when the config file changes (daemon mode only)"`
}

func (b *BuilderCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := configureLogging(cfg, "builder"); err != nil {
		return err
	}

	ctx, cancel := shutdownContext()
	defer cancel()

	watchConfig(ctx, b.Daemon, b.WatchConfig, root.Config, "builder")

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve worker binary path: %w", err)
	}

	backend := backendclient.New(cfg.Backend)
	queue, err := notifyqueue.Start(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("start notification queue: %w", err)
	}
	defer queue.Close()
	publisher := notifyqueue.NewPublisher(queue)

	home, _ := os.UserHomeDir()
	dp := diskpressure.New(projectsDir(cfg), home, cfg.DiskPressure)

	recorder := metrics.NewPrometheusRecorder(nil)
	bd := builder.New(projectsDir(cfg), dataDir(cfg), exe, backend, publisher, dp, recorder)

	var oneShot func(context.Context) error
	if b.Path != "" {
		job, err := loadJobFromPath(b.Path)
		if err != nil {
			return err
		}
		oneShot = func(ctx context.Context) error { return bd.RunIteration(ctx, job) }
	} else {
		oneShot = func(ctx context.Context) error { return bd.RunIteration(ctx, nil) }
	}

	svc := lifecycle.New("builder", cfg.Environment, workdir(cfg), cfg.Intervals.BuilderPoll, backend)
	svc.Run = func(ctx context.Context) error { return bd.RunIteration(ctx, nil) }

	return runService(ctx, svc, b.Daemon, oneShot)
}

func loadJobFromPath(path string) (*types.Job, error) {
	data, err := os.ReadFile(filepath.Join(path, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("read config.json: %w", err)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal config.json: %w", err)
	}
	return &job, nil
}

// NotifierCmd runs the Notifier service.
type NotifierCmd struct {
	Daemon      bool `help:"Run continuously on the configured interval instead of once"`
	WatchConfig bool `help:"Reload logging configuration when the config file changes (daemon mode only)"`
}

func (n *NotifierCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := configureLogging(cfg, "notifier"); err != nil {
		return err
	}

	ctx, cancel := shutdownContext()
	defer cancel()

	watchConfig(ctx, n.Daemon, n.WatchConfig, root.Config, "notifier")

	backend := backendclient.New(cfg.Backend)
	queue, err := notifyqueue.Start(ctx, cfg.Queue)
	if err != nil {
		return fmt.Errorf("start notification queue: %w", err)
	}
	defer queue.Close()
	consumer, err := notifyqueue.NewConsumer(ctx, queue)
	if err != nil {
		return fmt.Errorf("create notification consumer: %w", err)
	}

	var led *ledger.Ledger
	led, err = ledger.Open(filepath.Join(workdir(cfg), "ledger.db"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	hostname, _ := os.Hostname()
	recorder := metrics.NewPrometheusRecorder(nil)
	ntf := notifier.New(consumer, backend, projectsDir(cfg), cfg.Environment, hostname, recorder, led)

	svc := lifecycle.New("notifier", cfg.Environment, workdir(cfg), cfg.Intervals.NotifierDrain, backend)
	svc.Run = ntf.RunIteration

	return runService(ctx, svc, n.Daemon, ntf.RunIteration)
}

// AdminCmd runs the Admin API.
type AdminCmd struct {
	WatchConfig bool `help:"Reload logging configuration when the config file changes"`
}

func (a *AdminCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if err := configureLogging(cfg, "admin"); err != nil {
		return err
	}

	ctx, cancel := shutdownContext()
	defer cancel()

	watchConfig(ctx, true, a.WatchConfig, root.Config, "admin")

	var led *ledger.Ledger
	led, err = ledger.Open(filepath.Join(workdir(cfg), "ledger.db"))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	registry := prom.NewRegistry()
	_ = metrics.NewPrometheusRecorder(registry) // registers the shared metric families for /metrics

	services := map[string]adminapi.StatusProvider{
		"updater":  adminapi.FileStatusProvider{Name: "updater", Workdir: workdir(cfg), Version: version.Version},
		"builder":  adminapi.FileStatusProvider{Name: "builder", Workdir: workdir(cfg), Version: version.Version},
		"notifier": adminapi.FileStatusProvider{Name: "notifier", Workdir: workdir(cfg), Version: version.Version},
		"admin":    adminapi.FileStatusProvider{Name: "admin", Workdir: workdir(cfg), Version: version.Version},
	}

	srv := adminapi.New(services, led, registry, workdir(cfg), cfg.AdminAPI.Port, cfg.AdminAPI.BearerToken,
		cfg.AdminAPI.TLSCertPath, cfg.AdminAPI.TLSKeyPath)

	svc := lifecycle.New("admin", cfg.Environment, workdir(cfg), cfg.Intervals.Heartbeat, nil)
	svc.Run = func(context.Context) error { return nil }
	if err := svc.Start(ctx, true); err != nil {
		return fmt.Errorf("start admin: %w", err)
	}
	err = srv.ListenAndServeTLS(ctx)
	stopErr := svc.Stop(context.Background())
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("admin api: %w", err)
	}
	return stopErr
}

// BuildchildCmd is re-exec'd by the Builder, never invoked directly by an
// operator: it runs the five-stage build pipeline for one job and reports
// the outcome over the inherited fd 3 pipe (spec §4.3, §4.4).
type BuildchildCmd struct {
	JSON string `name:"json" help:"Path to the job's config.json" required:""`
	Path string `name:"path" help:"Path to the job's workspace root" required:""`
}

func (b *BuildchildCmd) Run(_ *Global, _ *CLI) error {
	result := b.runPipeline()

	out := os.NewFile(3, "ipc")
	if out == nil {
		return fmt.Errorf("fd 3 not inherited from parent")
	}
	defer out.Close()
	return ipc.WriteResult(out, result)
}

func (b *BuildchildCmd) runPipeline() ipc.Result {
	data, err := os.ReadFile(b.JSON)
	if err != nil {
		return ipc.Result{Message: err.Error(), MsgPublic: "internal error reading job"}
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return ipc.Result{Message: err.Error(), MsgPublic: "internal error reading job"}
	}

	backend := platform.Get(job.Platform)
	if backend == nil {
		return ipc.Result{
			Message:   fmt.Sprintf("no backend registered for platform %s", job.Platform),
			MsgPublic: "This worker cannot build for the requested platform.",
		}
	}

	pc := &buildpipeline.Context{
		Job:       &job,
		Workspace: &types.Workspace{Root: b.Path},
		Backend:   backend,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := buildpipeline.Run(ctx, pc); err != nil {
		if se, ok := err.(*buildpipeline.StageError); ok {
			return ipc.Result{Message: se.Message, MsgPublic: se.MsgPublic}
		}
		return ipc.Result{Message: err.Error(), MsgPublic: "the build failed"}
	}
	return ipc.Result{}
}
