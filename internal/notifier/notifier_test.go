package notifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/types"
)

func TestFirstArtifactEmptyDir(t *testing.T) {
	assert.Equal(t, "", firstArtifact(t.TempDir()))
}

func TestFirstArtifactMissingDir(t *testing.T) {
	assert.Equal(t, "", firstArtifact(filepath.Join(t.TempDir(), "missing")))
}

func TestFirstArtifactReturnsOneFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc_android_1.zip"), []byte("zip"), 0o644))
	assert.Equal(t, filepath.Join(dir, "abc_android_1.zip"), firstArtifact(dir))
}

func TestCleanWorkspaceRemovesInProduction(t *testing.T) {
	projectsDir := t.TempDir()
	notif := &types.Notification{Code: "abc", StartTime: 1}
	ws := types.NewWorkspaceFor(projectsDir, notif.Code, notif.StartTime)
	require.NoError(t, os.MkdirAll(ws.Root, 0o755))

	n := &Notifier{ProjectsDir: projectsDir, Env: config.EnvProduction}
	n.cleanWorkspace(t.Context(), notif)

	_, err := os.Stat(ws.Root)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanWorkspaceRetainedInDevelop(t *testing.T) {
	projectsDir := t.TempDir()
	notif := &types.Notification{Code: "abc", StartTime: 1}
	ws := types.NewWorkspaceFor(projectsDir, notif.Code, notif.StartTime)
	require.NoError(t, os.MkdirAll(ws.Root, 0o755))

	n := &Notifier{ProjectsDir: projectsDir, Env: config.EnvDevelop}
	n.cleanWorkspace(t.Context(), notif)

	_, err := os.Stat(ws.Root)
	assert.NoError(t, err)
}
