package buildpipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/platform"
	"github.com/fleetforge/compiler-worker/internal/types"
)

// fakeBackend lets tests control BuildJSON/Build/Pack outcomes without
// shelling out to a real native toolchain.
type fakeBackend struct {
	name         types.Platform
	buildJSONErr error
	buildErr     error
}

func (f fakeBackend) Name() types.Platform { return f.name }

func (f fakeBackend) BuildJSON(ctx context.Context, env *platform.BuildEnv) error {
	return f.buildJSONErr
}

func (f fakeBackend) Build(ctx context.Context, env *platform.BuildEnv) error {
	return f.buildErr
}

func (f fakeBackend) Pack(ctx context.Context, env *platform.BuildEnv) (string, error) {
	return "", nil
}

func TestBuildSurfacesWindowsNameTooLongMessage(t *testing.T) {
	pc := &Context{
		Job:       &types.Job{Code: "abc", Platform: types.PlatformWindows},
		Workspace: &types.Workspace{Root: t.TempDir()},
		Backend:   fakeBackend{name: types.PlatformWindows, buildJSONErr: platform.ErrProjectNameTooLong},
	}
	err := Build(context.Background(), pc)
	require.Error(t, err)
	se, ok := err.(*StageError)
	require.True(t, ok)
	assert.Equal(t, "Windows compilations can't have names longer than 40 characters. Choose a shorter name.", se.MsgPublic)
}

func TestBuildSurfacesGenericMessageForOtherBuildJSONFailures(t *testing.T) {
	pc := &Context{
		Job:       &types.Job{Code: "abc", Platform: types.PlatformAndroid},
		Workspace: &types.Workspace{Root: t.TempDir()},
		Backend:   fakeBackend{name: types.PlatformAndroid, buildJSONErr: assert.AnError},
	}
	err := Build(context.Background(), pc)
	require.Error(t, err)
	se, ok := err.(*StageError)
	require.True(t, ok)
	assert.Equal(t, "Could not prepare the signing configuration.", se.MsgPublic)
}

func TestBuildNoBackendRegistered(t *testing.T) {
	pc := &Context{
		Job:       &types.Job{Code: "abc", Platform: types.PlatformUbuntu},
		Workspace: &types.Workspace{Root: t.TempDir()},
	}
	err := Build(context.Background(), pc)
	require.Error(t, err)
	se, ok := err.(*StageError)
	require.True(t, ok)
	assert.Equal(t, "This worker cannot build for the requested platform.", se.MsgPublic)
}
