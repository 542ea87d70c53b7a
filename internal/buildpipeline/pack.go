package buildpipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/fleetforge/compiler-worker/internal/platform"
)

// Pack locates the produced artifacts and zips them into exactly one
// out/{code}_{platform}_{epochmillis}.zip, per spec §4.4 "pack".
func Pack(ctx context.Context, pc *Context) error {
	if err := os.MkdirAll(pc.Workspace.OutDir(), 0o755); err != nil {
		return fail("pack", fmt.Sprintf("create out dir: %v", err), "Could not prepare the output directory.")
	}

	env := &platform.BuildEnv{Workspace: pc.Workspace, Job: pc.Job, ProjectName: pc.ProjectName}
	artifact, err := pc.Backend.Pack(ctx, env)
	if err != nil {
		return fail("pack", fmt.Sprintf("pack: %v", err), "Could not locate the build output to package.")
	}
	if artifact == "" {
		return fail("pack", "backend reported no artifact", "The build produced no output artifact.")
	}

	pc.Artifact = artifact
	return nil
}
