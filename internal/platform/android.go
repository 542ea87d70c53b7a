package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fleetforge/compiler-worker/internal/types"
)

func init() { Register(androidBackend{}) }

// androidBackend builds Cordova Android projects via gradle, signing with
// the job's keystore when present (spec §4.4 "Android").
type androidBackend struct{}

func (androidBackend) Name() types.Platform { return types.PlatformAndroid }

var apkPattern = regexp.MustCompile(`(?i)\.apk$`)

// BuildJSON writes the keystore staged to disk when the job is signed; no
// descriptor file is needed for Android (gradle reads signing properties
// directly via buildProperties).
func (androidBackend) BuildJSON(ctx context.Context, env *BuildEnv) error {
	if !env.Job.Signed() {
		return nil
	}
	certsDir, err := ensureCertsDir(env.Workspace)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(env.Job.Key.Keystore)
	if err != nil {
		return fmt.Errorf("decode keystore: %w", err)
	}
	return os.WriteFile(filepath.Join(certsDir, "release.keystore"), raw, 0o600)
}

// Build accepts SDK licenses, then runs a debug+release-unsigned build
// when unsigned, or a signed release build when signed.
func (androidBackend) Build(ctx context.Context, env *BuildEnv) error {
	if err := acceptSDKLicenses(ctx); err != nil {
		return fmt.Errorf("accept sdk licenses: %w", err)
	}

	projectDir := env.Workspace.ProjectDir()
	if !env.Job.Signed() {
		if err := runGradle(ctx, projectDir, "assembleDebug"); err != nil {
			return fmt.Errorf("assembleDebug: %w", err)
		}
		if err := runGradle(ctx, projectDir, "assembleRelease", "-PbuildType=unsigned"); err != nil {
			return fmt.Errorf("assembleRelease (unsigned): %w", err)
		}
		return nil
	}

	keystorePath := filepath.Join(env.Workspace.CertsDir(), "release.keystore")
	args := []string{
		"assembleRelease",
		"-Pandroid.injected.signing.store.file=" + keystorePath,
		"-Pandroid.injected.signing.store.password=" + env.Job.Key.Password,
		"-Pandroid.injected.signing.key.alias=" + env.Job.Key.Alias,
		"-Pandroid.injected.signing.key.password=" + env.Job.Key.Password,
	}
	if err := runGradle(ctx, projectDir, args...); err != nil {
		return fmt.Errorf("assembleRelease (signed): %w", err)
	}
	return nil
}

// androidOutputDirs are the known gradle output locations, searched in
// order, for one variant ("debug" or "release"), matching the spec's
// "regex over the known APK output directories".
var androidOutputDirs = map[string][]string{
	"debug": {
		filepath.Join("platforms", "android", "app", "build", "outputs", "apk", "debug"),
		filepath.Join("platforms", "android", "build", "outputs", "apk", "debug"),
	},
	"release": {
		filepath.Join("platforms", "android", "app", "build", "outputs", "apk", "release"),
		filepath.Join("platforms", "android", "build", "outputs", "apk", "release"),
	},
}

// findAPK locates the first APK under any of the given project-relative
// dirs.
func findAPK(projectDir string, dirs []string) (string, error) {
	for _, dir := range dirs {
		full := filepath.Join(projectDir, dir)
		if _, err := os.Stat(full); err != nil {
			continue
		}
		found, err := findFirst(full, func(p string) bool { return apkPattern.MatchString(p) })
		if err == nil && found != "" {
			return found, nil
		}
	}
	return "", fmt.Errorf("no APK artifact found under %v", dirs)
}

// Pack locates the produced APK(s) and zips them into out/. A signed job
// built only assembleRelease and packs that single release APK; an
// unsigned job built both assembleDebug and assembleRelease (unsigned) and
// packs both APKs into the same zip, per spec §8 boundary behavior.
func (androidBackend) Pack(ctx context.Context, env *BuildEnv) (string, error) {
	projectDir := env.Workspace.ProjectDir()
	out := filepath.Join(env.Workspace.OutDir(), artifactName(env.Job))

	if env.Job.Signed() {
		apk, err := findAPK(projectDir, androidOutputDirs["release"])
		if err != nil {
			return "", err
		}
		if err := zipFiles(out, map[string]string{apk: filepath.Base(apk)}); err != nil {
			return "", err
		}
		return out, nil
	}

	debugAPK, err := findAPK(projectDir, androidOutputDirs["debug"])
	if err != nil {
		return "", err
	}
	releaseAPK, err := findAPK(projectDir, androidOutputDirs["release"])
	if err != nil {
		return "", err
	}
	files := map[string]string{
		debugAPK:   "debug-" + filepath.Base(debugAPK),
		releaseAPK: "release-" + filepath.Base(releaseAPK),
	}
	if err := zipFiles(out, files); err != nil {
		return "", err
	}
	return out, nil
}

func acceptSDKLicenses(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "sdkmanager", "--licenses")
	cmd.Stdin = strings.NewReader(strings.Repeat("y\n", 16))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}

func runGradle(ctx context.Context, projectDir string, args ...string) error {
	cmd := exec.CommandContext(ctx, filepath.Join(projectDir, "platforms", "android", "gradlew"), args...)
	cmd.Dir = filepath.Join(projectDir, "platforms", "android")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, out)
	}
	return nil
}
