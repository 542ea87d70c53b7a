package buildpipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetforge/compiler-worker/internal/platform"
)

// Build invokes the platform backend's signing-descriptor emission and
// native build sequence, per spec §4.4 "build".
func Build(ctx context.Context, pc *Context) error {
	if pc.Backend == nil {
		return fail("build", fmt.Sprintf("no backend registered for platform %s", pc.Job.Platform),
			"This worker cannot build for the requested platform.")
	}

	env := &platform.BuildEnv{Workspace: pc.Workspace, Job: pc.Job, ProjectName: pc.ProjectName}

	if err := pc.Backend.BuildJSON(ctx, env); err != nil {
		if errors.Is(err, platform.ErrProjectNameTooLong) {
			return fail("build", fmt.Sprintf("buildJson: %v", err),
				"Windows compilations can't have names longer than 40 characters. Choose a shorter name.")
		}
		return fail("build", fmt.Sprintf("buildJson: %v", err), "Could not prepare the signing configuration.")
	}
	if err := pc.Backend.Build(ctx, env); err != nil {
		return fail("build", fmt.Sprintf("build: %v", err), "The native build failed.")
	}
	return nil
}
