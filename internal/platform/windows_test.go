package platform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/types"
)

func TestWindowsBuildJSONAcceptsNameAtLimit(t *testing.T) {
	env := &BuildEnv{
		Workspace:   &types.Workspace{Root: t.TempDir()},
		Job:         &types.Job{Platform: types.PlatformWindows},
		ProjectName: strings.Repeat("a", maxProjectNameLen),
	}
	err := windowsBackend{}.BuildJSON(context.Background(), env)
	require.NoError(t, err)
}

func TestWindowsBuildJSONRejectsNameOverLimit(t *testing.T) {
	env := &BuildEnv{
		Workspace:   &types.Workspace{Root: t.TempDir()},
		Job:         &types.Job{Platform: types.PlatformWindows},
		ProjectName: strings.Repeat("a", maxProjectNameLen+1),
	}
	err := windowsBackend{}.BuildJSON(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProjectNameTooLong))
}
