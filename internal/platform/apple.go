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

func init() {
	Register(appleBackend{os: types.PlatformIOS})
	Register(appleBackend{os: types.PlatformOSX})
}

// appleBackend builds Cordova iOS/OSX projects with xcodebuild, managing a
// dedicated per-job keychain and provisioning profile when signed (spec
// §4.4 "Apple (iOS/OSX)").
type appleBackend struct {
	os types.Platform
}

func (b appleBackend) Name() types.Platform { return b.os }

var provisioningUUIDPattern = regexp.MustCompile(`(?i)[-A-Z0-9]{36}`)

// appleSigningIdentity is the codesign identity name used for both
// development and distribution exports. That reuse is probably a bug
// in the original tool rather than an intentional choice, but nothing
// in the job model distinguishes the two, so it's preserved as-is.
const appleSigningIdentity = "Mac Developer"

// BuildJSON stages the p12 and provisioning profile, extracts the profile
// UUID for the export options, and writes the build scheme. The profile is
// installed under its staged file name, profile.mobileprovision, not under
// its UUID.
func (b appleBackend) BuildJSON(ctx context.Context, env *BuildEnv) error {
	if !env.Job.Signed() {
		return nil
	}
	certsDir, err := ensureCertsDir(env.Workspace)
	if err != nil {
		return err
	}

	p12, err := base64.StdEncoding.DecodeString(env.Job.Key.P12)
	if err != nil {
		return fmt.Errorf("decode p12: %w", err)
	}
	p12Path := filepath.Join(certsDir, "signing.p12")
	if err := os.WriteFile(p12Path, p12, 0o600); err != nil {
		return err
	}

	profile, err := base64.StdEncoding.DecodeString(env.Job.Key.Provisioning)
	if err != nil {
		return fmt.Errorf("decode provisioning profile: %w", err)
	}
	profilePath := filepath.Join(certsDir, "profile.mobileprovision")
	if err := os.WriteFile(profilePath, profile, 0o600); err != nil {
		return err
	}

	uuid, err := extractProvisioningUUID(ctx, profilePath)
	if err != nil {
		return fmt.Errorf("extract provisioning UUID: %w", err)
	}
	env.Job.Key.ProvisioningUUID = uuid

	return b.writeBuildScheme(env)
}

// extractProvisioningUUID shells out to security cms -D (which decodes the
// profile's embedded plist) and greps the UUID the way the original tool
// does: `grep UUID -A1 | grep -io '[-A-Z0-9]{36}'`.
func extractProvisioningUUID(ctx context.Context, profilePath string) (string, error) {
	cmd := exec.CommandContext(ctx, "security", "cms", "-D", "-i", profilePath)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	lines := strings.Split(string(out), "\n")
	for i, line := range lines {
		if !strings.Contains(line, "UUID") {
			continue
		}
		window := line
		if i+1 < len(lines) {
			window += "\n" + lines[i+1]
		}
		if match := provisioningUUIDPattern.FindString(window); match != "" {
			return match, nil
		}
	}
	return "", fmt.Errorf("no UUID found in provisioning profile")
}

// writeBuildScheme writes the xcode scheme file from a fixed template,
// keeping parity with the spec's "write a build scheme file from a
// template" step. The scheme content itself is xcodebuild boilerplate, not
// something this worker varies per job.
func (b appleBackend) writeBuildScheme(env *BuildEnv) error {
	schemeDir := filepath.Join(env.Workspace.ProjectDir(), "platforms", string(b.os), env.ProjectName+".xcodeproj", "xcshareddata", "xcschemes")
	if err := os.MkdirAll(schemeDir, 0o755); err != nil {
		return err
	}
	content := fmt.Sprintf(appleSchemeTemplate, env.ProjectName, env.ProjectName)
	return os.WriteFile(filepath.Join(schemeDir, env.ProjectName+".xcscheme"), []byte(content), 0o644)
}

const appleSchemeTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<Scheme version="1.3">
  <BuildAction><BuildActionEntries><BuildActionEntry buildForArchiving="YES"><BuildableReference BuildableName="%s.app" BlueprintName="%s"/></BuildActionEntry></BuildActionEntries></BuildAction>
  <ArchiveAction revealArchiveInOrganizer="YES"/>
</Scheme>
`

// createKeychain, importIdentity, installProfile, removeProfile, and
// deleteKeychain implement the Apple-only setup/teardown pair the spec
// calls out as always running, on every exit path, when the job is signed.
func createKeychain(ctx context.Context, name, password string) error {
	if out, err := exec.CommandContext(ctx, "security", "create-keychain", "-p", password, name).CombinedOutput(); err != nil {
		return fmt.Errorf("create-keychain: %w: %s", err, out)
	}
	if out, err := exec.CommandContext(ctx, "security", "unlock-keychain", "-p", password, name).CombinedOutput(); err != nil {
		return fmt.Errorf("unlock-keychain: %w: %s", err, out)
	}
	return nil
}

func importIdentity(ctx context.Context, keychain, p12Path, password string) error {
	out, err := exec.CommandContext(ctx, "security", "import", p12Path, "-k", keychain,
		"-P", password, "-T", "/usr/bin/codesign").CombinedOutput()
	if err != nil {
		return fmt.Errorf("security import: %w: %s", err, out)
	}
	return nil
}

func installProfile(profilePath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dest := filepath.Join(home, "Library", "MobileDevice", "Provisioning Profiles")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, filepath.Base(profilePath)), data, 0o644)
}

func removeProfile(profilePath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return os.Remove(filepath.Join(home, "Library", "MobileDevice", "Provisioning Profiles", filepath.Base(profilePath)))
}

func deleteKeychain(ctx context.Context, name string) error {
	return exec.CommandContext(ctx, "security", "delete-keychain", name).Run()
}

// Build disables code-signing during archive (signing, when required,
// happens at export time via exportOptions), runs xcodebuild archive, then
// exports per-platform, always cleaning up the keychain/profile on every
// exit path per spec §4.4.
func (b appleBackend) Build(ctx context.Context, env *BuildEnv) error {
	if !env.Job.Signed() {
		return b.buildUnsigned(ctx, env)
	}

	keychainName := env.Job.Code + ".keychain"
	certsDir := env.Workspace.CertsDir()
	p12Path := filepath.Join(certsDir, "signing.p12")
	profilePath := filepath.Join(certsDir, "profile.mobileprovision")

	if err := createKeychain(ctx, keychainName, env.Job.Key.Password); err != nil {
		return err
	}
	defer deleteKeychain(ctx, keychainName)

	if err := importIdentity(ctx, keychainName, p12Path, env.Job.Key.Password); err != nil {
		return err
	}
	if err := installProfile(profilePath); err != nil {
		return err
	}
	defer removeProfile(profilePath)

	if err := b.disableSigningForArchive(env); err != nil {
		return err
	}
	archivePath := filepath.Join(env.Workspace.OutDir(), env.ProjectName+".xcarchive")
	if err := b.xcodebuild(ctx, env, "archive", "-archivePath", archivePath); err != nil {
		return err
	}

	return b.export(ctx, env, archivePath)
}

func (b appleBackend) buildUnsigned(ctx context.Context, env *BuildEnv) error {
	archivePath := filepath.Join(env.Workspace.OutDir(), env.ProjectName+".xcarchive")
	return b.xcodebuild(ctx, env, "archive", "-archivePath", archivePath, "CODE_SIGNING_ALLOWED=NO")
}

// disableSigningForArchive rewrites the xcconfig files to disable
// code-signing during archive, per spec §4.4; the real signing happens at
// export time via exportOptions/productbuild.
func (b appleBackend) disableSigningForArchive(env *BuildEnv) error {
	xcconfigDir := filepath.Join(env.Workspace.ProjectDir(), "platforms", string(b.os), "cordova")
	for _, name := range []string{"build-debug.xcconfig", "build-release.xcconfig"} {
		if err := appendToFile(filepath.Join(xcconfigDir, name), "\nCODE_SIGNING_ALLOWED = NO\n"); err != nil {
			return err
		}
	}
	return nil
}

func appendToFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

func (b appleBackend) xcodebuild(ctx context.Context, env *BuildEnv, args ...string) error {
	cmd := exec.CommandContext(ctx, "xcodebuild", args...)
	cmd.Dir = filepath.Join(env.Workspace.ProjectDir(), "platforms", string(b.os))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("xcodebuild %v: %w: %s", args, err, out)
	}
	return nil
}

// export runs `xcodebuild -exportArchive` with a generated
// export_options.plist for iOS, or `productbuild` for OSX, per spec §4.4.
func (b appleBackend) export(ctx context.Context, env *BuildEnv, archivePath string) error {
	if b.os == types.PlatformIOS {
		plistPath := filepath.Join(env.Workspace.CertsDir(), "export_options.plist")
		if err := writeExportOptionsPlist(plistPath, env.Job.Key.ProvisioningUUID); err != nil {
			return err
		}
		return b.xcodebuild(ctx, env, "-exportArchive",
			"-archivePath", archivePath,
			"-exportPath", env.Workspace.OutDir(),
			"-exportOptionsPlist", plistPath,
		)
	}

	appPath := filepath.Join(archivePath, "Products", "Applications", env.ProjectName+".app")
	pkgPath := filepath.Join(env.Workspace.OutDir(), env.ProjectName+".pkg")
	cmd := exec.CommandContext(ctx, "productbuild", "--component", appPath, "/Applications", pkgPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("productbuild: %w: %s", err, out)
	}
	return nil
}

func writeExportOptionsPlist(path, provisioningUUID string) error {
	content := fmt.Sprintf(exportOptionsTemplate, provisioningUUID, appleSigningIdentity)
	return os.WriteFile(path, []byte(content), 0o644)
}

const exportOptionsTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>method</key>
	<string>ad-hoc</string>
	<key>provisioningProfiles</key>
	<dict/>
	<key>signingStyle</key>
	<string>manual</string>
	<key>uuid</key>
	<string>%s</string>
	<key>signingCertificate</key>
	<string>%s</string>
</dict>
</plist>
`

// Pack zips the exported artifact (.ipa for iOS, .pkg for OSX).
func (b appleBackend) Pack(ctx context.Context, env *BuildEnv) (string, error) {
	var match func(string) bool
	if b.os == types.PlatformIOS {
		match = func(p string) bool { return filepath.Ext(p) == ".ipa" }
	} else {
		match = func(p string) bool { return filepath.Ext(p) == ".pkg" }
	}

	artifact, err := findFirst(env.Workspace.OutDir(), match)
	if err != nil || artifact == "" {
		return "", fmt.Errorf("no exported artifact found for %s", b.os)
	}

	out := filepath.Join(env.Workspace.OutDir(), artifactName(env.Job))
	if err := zipFiles(out, map[string]string{artifact: filepath.Base(artifact)}); err != nil {
		return "", err
	}
	return out, nil
}
