package types

import (
	"path/filepath"
	"strconv"
)

// Workspace is the fixed directory layout for one job, rooted at
// projects/{code}_{starttime}/.
type Workspace struct {
	Root string
}

// NewWorkspace returns the Workspace for job j rooted under projectsDir.
func NewWorkspace(projectsDir string, j *Job) *Workspace {
	return &Workspace{Root: filepath.Join(projectsDir, j.WorkspaceName())}
}

// NewWorkspaceFor returns the Workspace for the job named by code/starttime
// rooted under projectsDir — used by callers (the Notifier) that only hold
// a Notification, not the original Job.
func NewWorkspaceFor(projectsDir, code string, startTime int64) *Workspace {
	return &Workspace{Root: filepath.Join(projectsDir, code+"_"+strconv.FormatInt(startTime, 10))}
}

func (w *Workspace) path(elem ...string) string {
	return filepath.Join(append([]string{w.Root}, elem...)...)
}

// ProjectDir is the native project copy, mutated by the build child.
func (w *Workspace) ProjectDir() string { return w.path("workspace") }

// TmpDir is zip-extraction staging, recreated per create stage.
func (w *Workspace) TmpDir() string { return w.path("tmp") }

// CertsDir holds imported signing material for the duration of the build.
func (w *Workspace) CertsDir() string { return w.path("certs") }

// IconsDir holds fetched icon assets.
func (w *Workspace) IconsDir() string { return w.path("icons") }

// SplashesDir holds fetched splash-screen assets.
func (w *Workspace) SplashesDir() string { return w.path("splashes") }

// OutDir holds the final packed artifact.
func (w *Workspace) OutDir() string { return w.path("out") }

// ConfigJSON is the persisted job JSON, written atomically at creation.
func (w *Workspace) ConfigJSON() string { return w.path("config.json") }

// ConfigXML is the project manifest fetched in the init stage.
func (w *Workspace) ConfigXML() string { return w.path("config.xml") }

// SourceZip is the fetched project sources archive.
func (w *Workspace) SourceZip() string { return w.path("source.zip") }

// CordovaLog accumulates native-tool output during prepare/build.
func (w *Workspace) CordovaLog() string { return w.path("cordova.log") }

// StdoutLog captures the build child's own stdout/stderr, redacted.
func (w *Workspace) StdoutLog() string { return w.path("stdout.log") }
