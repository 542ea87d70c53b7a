package adminapi

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStatusProviderNeverStarted(t *testing.T) {
	p := FileStatusProvider{Name: "builder", Workdir: t.TempDir(), Version: "1.2.3"}
	status := p.Status()
	assert.False(t, status.Working)
	assert.True(t, status.Started.IsZero())
	assert.Equal(t, "1.2.3", status.Version)
}

func TestFileStatusProviderWorkingAndStarted(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "builder.lock"), nil, 0o644))
	started := time.Now().Add(-time.Hour).Truncate(time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "builder.started"),
		[]byte(strconv.FormatInt(started.UnixMilli(), 10)), 0o644))

	p := FileStatusProvider{Name: "builder", Workdir: workdir}
	status := p.Status()
	assert.True(t, status.Working)
	assert.True(t, status.Started.Equal(started))
}

func TestFileStatusProviderIgnoresMalformedStartedFile(t *testing.T) {
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "builder.started"), []byte("not-a-number"), 0o644))

	p := FileStatusProvider{Name: "builder", Workdir: workdir}
	status := p.Status()
	assert.True(t, status.Started.IsZero())
}
