package platform

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/types"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("apk-bytes"), 0o644))
}

func zipEntryNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func TestAndroidPackUnsignedZipsBothAPKs(t *testing.T) {
	root := t.TempDir()
	ws := &types.Workspace{Root: root}
	job := &types.Job{Code: "abc", Platform: types.PlatformAndroid, StartTime: 1}

	writeFile(t, filepath.Join(ws.ProjectDir(), "platforms", "android", "app", "build", "outputs", "apk", "debug", "app-debug.apk"))
	writeFile(t, filepath.Join(ws.ProjectDir(), "platforms", "android", "app", "build", "outputs", "apk", "release", "app-release-unsigned.apk"))
	require.NoError(t, os.MkdirAll(ws.OutDir(), 0o755))

	env := &BuildEnv{Workspace: ws, Job: job}
	out, err := androidBackend{}.Pack(context.Background(), env)
	require.NoError(t, err)

	names := zipEntryNames(t, out)
	assert.ElementsMatch(t, []string{"debug-app-debug.apk", "release-app-release-unsigned.apk"}, names)
}

func TestAndroidPackSignedZipsOnlyReleaseAPK(t *testing.T) {
	root := t.TempDir()
	ws := &types.Workspace{Root: root}
	job := &types.Job{Code: "abc", Platform: types.PlatformAndroid, StartTime: 1, Key: &types.SigningKey{Keystore: "x"}}

	writeFile(t, filepath.Join(ws.ProjectDir(), "platforms", "android", "app", "build", "outputs", "apk", "release", "app-release.apk"))
	require.NoError(t, os.MkdirAll(ws.OutDir(), 0o755))

	env := &BuildEnv{Workspace: ws, Job: job}
	out, err := androidBackend{}.Pack(context.Background(), env)
	require.NoError(t, err)

	names := zipEntryNames(t, out)
	assert.Equal(t, []string{"app-release.apk"}, names)
}

func TestAndroidPackUnsignedMissingDebugAPKFails(t *testing.T) {
	root := t.TempDir()
	ws := &types.Workspace{Root: root}
	job := &types.Job{Code: "abc", Platform: types.PlatformAndroid, StartTime: 1}

	writeFile(t, filepath.Join(ws.ProjectDir(), "platforms", "android", "app", "build", "outputs", "apk", "release", "app-release-unsigned.apk"))
	require.NoError(t, os.MkdirAll(ws.OutDir(), 0o755))

	env := &BuildEnv{Workspace: ws, Job: job}
	_, err := androidBackend{}.Pack(context.Background(), env)
	assert.Error(t, err)
}
