package platform

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/fleetforge/compiler-worker/internal/types"
)

func init() { Register(ubuntuBackend{}) }

// ubuntuBackend builds Cordova Ubuntu (Snappy/deb) projects with debuild,
// the simplest of the five variants: no signing support (spec §4.4
// "Ubuntu").
type ubuntuBackend struct{}

func (ubuntuBackend) Name() types.Platform { return types.PlatformUbuntu }

// BuildJSON is a no-op: Ubuntu packages are never signed in this pipeline.
func (ubuntuBackend) BuildJSON(ctx context.Context, env *BuildEnv) error { return nil }

// Build runs `debuild -i -us -uc -b`, the unsigned binary-only build.
func (ubuntuBackend) Build(ctx context.Context, env *BuildEnv) error {
	debianDir := filepath.Join(env.Workspace.ProjectDir(), "platforms", "ubuntu")
	cmd := exec.CommandContext(ctx, "debuild", "-i", "-us", "-uc", "-b")
	cmd.Dir = debianDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("debuild: %w: %s", err, out)
	}
	return nil
}

// Pack locates the produced .deb and zips it into out/.
func (ubuntuBackend) Pack(ctx context.Context, env *BuildEnv) (string, error) {
	parent := filepath.Dir(filepath.Join(env.Workspace.ProjectDir(), "platforms", "ubuntu"))
	artifact, err := findFirst(parent, func(p string) bool { return filepath.Ext(p) == ".deb" })
	if err != nil || artifact == "" {
		return "", fmt.Errorf("no .deb artifact found under %s", parent)
	}

	out := filepath.Join(env.Workspace.OutDir(), artifactName(env.Job))
	if err := zipFiles(out, map[string]string{artifact: filepath.Base(artifact)}); err != nil {
		return "", err
	}
	return out, nil
}
