package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/config"
)

func TestServiceOneShotStartPublishesStartedFileNotLock(t *testing.T) {
	workdir := t.TempDir()
	svc := New("builder", config.EnvDevelop, workdir, 0, nil)
	svc.Run = func(ctx context.Context) error { return nil }

	require.NoError(t, svc.Start(context.Background(), false))
	assert.Equal(t, StateLooping, svc.State())

	_, err := os.Stat(filepath.Join(workdir, "builder.started"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(workdir, "builder.lock"))
	assert.True(t, os.IsNotExist(err))
}

func TestServiceWorkingLockLifecycle(t *testing.T) {
	workdir := t.TempDir()
	svc := New("builder", config.EnvDevelop, workdir, 0, nil)

	require.NoError(t, svc.setWorking(true))
	assert.True(t, svc.Working())
	_, err := os.Stat(svc.lockPath())
	assert.NoError(t, err)

	require.NoError(t, svc.setWorking(false))
	assert.False(t, svc.Working())
	_, err = os.Stat(svc.lockPath())
	assert.True(t, os.IsNotExist(err))
}

func TestServiceStopRemovesStartedFile(t *testing.T) {
	workdir := t.TempDir()
	svc := New("notifier", config.EnvDevelop, workdir, 0, nil)
	svc.Run = func(ctx context.Context) error { return nil }

	require.NoError(t, svc.Start(context.Background(), false))
	require.NoError(t, svc.Stop(context.Background()))

	_, err := os.Stat(filepath.Join(workdir, "notifier.started"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, StateStopped, svc.State())
}
