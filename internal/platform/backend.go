// Package platform defines the uniform build-backend contract for one
// target OS (android/ios/osx/windows/ubuntu) and the five concrete
// implementations driven by internal/buildpipeline's "build" stage
// (spec §4.4, §9 "class hierarchy → variants + shared helper").
package platform

import (
	"context"

	"github.com/fleetforge/compiler-worker/internal/types"
)

// Backend is the capability set every platform variant implements.
type Backend interface {
	// Name identifies this backend, matching types.Platform.
	Name() types.Platform

	// BuildJSON emits the signing descriptor file the native tool
	// consumes. Content is platform-specific; a no-op for unsigned jobs
	// that need no descriptor.
	BuildJSON(ctx context.Context, env *BuildEnv) error

	// Build runs the platform-specific native build sequence.
	Build(ctx context.Context, env *BuildEnv) error

	// Pack locates produced artifacts and zips them into
	// out/{code}_{platform}_{epochmillis}.zip.
	Pack(ctx context.Context, env *BuildEnv) (string, error)
}

// BuildEnv is the shared context passed to every backend call: the
// workspace, the job, and the project name the create stage assigned.
type BuildEnv struct {
	Workspace   *types.Workspace
	Job         *types.Job
	ProjectName string
}

// registry maps platform name to its backend, populated by each variant's
// init() via Register. The Builder consults it (via LocalPlatforms) to
// tell the backend which platforms this host can build.
var registry = map[types.Platform]Backend{}

// Register adds a backend to the local registry. Called from each
// variant's init().
func Register(b Backend) { registry[b.Name()] = b }

// Get returns the backend for platform p, or nil if this host has none.
func Get(p types.Platform) Backend { return registry[p] }

// LocalPlatforms returns the platforms this host has a registered backend
// for, used in the Builder's job-fetch request body (spec §4.3 step 3).
func LocalPlatforms() []types.Platform {
	out := make([]types.Platform, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	return out
}
