// Package buildpipeline implements the build child's linear five-stage
// pipeline: init, create, prepare, build, pack (spec §4.4). Each stage
// returns a structured error that becomes the terminal IPC message; the
// pipeline aborts on the first failing stage.
package buildpipeline

import (
	"context"

	"github.com/fleetforge/compiler-worker/internal/logfields"
	"github.com/fleetforge/compiler-worker/internal/observability"
	"github.com/fleetforge/compiler-worker/internal/platform"
	"github.com/fleetforge/compiler-worker/internal/types"
)

// StageError is the structured failure every stage reports, split into the
// internally-logged message and the end-user-visible one (spec §8
// "Propagation policy").
type StageError struct {
	Stage     string
	Message   string
	MsgPublic string
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Message }

func fail(stage, message, msgPublic string) *StageError {
	return &StageError{Stage: stage, Message: message, MsgPublic: msgPublic}
}

// Context carries the state threaded through all five stages.
type Context struct {
	Job         *types.Job
	Workspace   *types.Workspace
	ConfigRoot  string // base for relative config/source URLs in one-shot mode
	Backend     platform.Backend
	ProjectName string // set by the create stage, consumed by build/pack
	Artifact    string // set by the pack stage
}

// Stage is one pipeline step.
type Stage func(ctx context.Context, pc *Context) error

type namedStage struct {
	name string
	run  Stage
}

// stages is the fixed, ordered list the build child runs.
var stages = []namedStage{
	{"init", Init},
	{"create", Create},
	{"prepare", Prepare},
	{"build", Build},
	{"pack", Pack},
}

// Run drives the five stages in order, stopping at the first error.
// Returns the artifact path on success.
func Run(ctx context.Context, pc *Context) (string, error) {
	for _, st := range stages {
		observability.InfoContext(ctx, "pipeline stage starting", logfields.Stage(st.name))
		if err := st.run(ctx, pc); err != nil {
			return "", err
		}
	}
	return pc.Artifact, nil
}
