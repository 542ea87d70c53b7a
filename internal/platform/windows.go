package platform

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fleetforge/compiler-worker/internal/types"
)

func init() { Register(windowsBackend{}) }

const maxProjectNameLen = 40

// ErrProjectNameTooLong is returned by BuildJSON when the project name
// exceeds maxProjectNameLen. buildpipeline surfaces it with the exact
// public-facing text spec §8 scenario 3 mandates, which Windows alone
// needs because MSBuild's package name derives from the project name.
var ErrProjectNameTooLong = errors.New("project name exceeds 40 characters")

// windowsBackend builds Cordova Windows (UWP) projects via MSBuild,
// importing the job's PFX with certutil when signed (spec §4.4 "Windows").
type windowsBackend struct{}

func (windowsBackend) Name() types.Platform { return types.PlatformWindows }

// buildJSON is the build.json descriptor MSBuild's windows build reads for
// signing parameters.
type buildJSON struct {
	Windows windowsBuildJSON `json:"windows"`
}

type windowsBuildJSON struct {
	Release struct {
		Thumbprint string `json:"thumbprint,omitempty"`
		Publisher  string `json:"publisherId,omitempty"`
	} `json:"release"`
}

// BuildJSON rejects over-long project names and, when signed, imports the
// PFX via certutil and writes the build.json descriptor, per spec §4.4.
func (windowsBackend) BuildJSON(ctx context.Context, env *BuildEnv) error {
	if len(env.ProjectName) > maxProjectNameLen {
		return fmt.Errorf("%w: %q is %d characters", ErrProjectNameTooLong, env.ProjectName, len(env.ProjectName))
	}
	if !env.Job.Signed() {
		return nil
	}

	certsDir, err := ensureCertsDir(env.Workspace)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(env.Job.Key.PFX)
	if err != nil {
		return fmt.Errorf("decode pfx: %w", err)
	}
	pfxPath := filepath.Join(certsDir, "signing.pfx")
	if err := os.WriteFile(pfxPath, raw, 0o600); err != nil {
		return err
	}

	if err := importPFX(ctx, pfxPath, env.Job.Key.Password); err != nil {
		return fmt.Errorf("import pfx: %w", err)
	}

	var desc buildJSON
	desc.Windows.Release.Thumbprint = env.Job.Key.Thumbprint
	desc.Windows.Release.Publisher = env.Job.Key.Publisher
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(env.Workspace.ProjectDir(), "build.json"), data, 0o644)
}

func importPFX(ctx context.Context, pfxPath, password string) error {
	out, err := exec.CommandContext(ctx, "certutil", "-f", "-p", password, "-importpfx", pfxPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

func removeCert(ctx context.Context, thumbprint string) error {
	return exec.CommandContext(ctx, "certutil", "-delstore", "My", thumbprint).Run()
}

// Build runs an MSBuild release for each of x86/x64/arm, always removing
// the imported certificate on exit when the job was signed.
func (windowsBackend) Build(ctx context.Context, env *BuildEnv) error {
	if env.Job.Signed() {
		defer removeCert(ctx, env.Job.Key.Thumbprint)
	}

	cmd := exec.CommandContext(ctx, cordovaBin(env.Job.LibVersion), "build", "windows",
		"--release", "--archs=x86 x64 arm")
	cmd.Dir = env.Workspace.ProjectDir()
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("cordova build windows: %w: %s", err, out)
	}
	return nil
}

var windowsArtifactDir = filepath.Join("platforms", "windows", "AppPackages")

// Pack locates the produced AppxBundle/AppxUpload and zips it into out/.
func (windowsBackend) Pack(ctx context.Context, env *BuildEnv) (string, error) {
	root := filepath.Join(env.Workspace.ProjectDir(), windowsArtifactDir)
	artifact, err := findFirst(root, func(p string) bool {
		ext := filepath.Ext(p)
		return ext == ".appxbundle" || ext == ".appxupload" || ext == ".appx"
	})
	if err != nil || artifact == "" {
		return "", fmt.Errorf("no windows package artifact found under %s", root)
	}

	out := filepath.Join(env.Workspace.OutDir(), artifactName(env.Job))
	if err := zipFiles(out, map[string]string{artifact: filepath.Base(artifact)}); err != nil {
		return "", err
	}
	return out, nil
}

// cordovaBin mirrors buildpipeline's helper; duplicated here to avoid an
// import cycle between internal/platform and internal/buildpipeline.
func cordovaBin(libVersion string) string {
	return filepath.Join("libs", "cordova-lib@"+libVersion, "node_modules", ".bin", "cordova")
}
