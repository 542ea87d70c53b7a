package builder

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/backendclient"
	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/types"
)

func TestFetchJobReturnsOverrideWithoutCallingBackend(t *testing.T) {
	b := &Builder{}
	override := &types.Job{Code: "abc"}

	job, err := b.fetchJob(t.Context(), override)
	require.NoError(t, err)
	assert.Same(t, override, job)
}

func TestFetchJobRejectsMalformedJobFromBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// missing config/source/libVersion: Validate must reject it.
		_, _ = w.Write([]byte(`{"code":"abc","platforms":["android"]}`))
	}))
	defer srv.Close()

	b := &Builder{Backend: backendclient.New(config.BackendConfig{BaseURL: srv.URL})}
	job, err := b.fetchJob(t.Context(), nil)
	assert.Nil(t, job)
	require.Error(t, err)
}

func TestFetchJobNoJobAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	b := &Builder{Backend: backendclient.New(config.BackendConfig{BaseURL: srv.URL})}
	job, err := b.fetchJob(t.Context(), nil)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRedactingWriterStripsWorkspacePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stdout.log")
	f, err := os.Create(path)
	require.NoError(t, err)

	rw := redactingWriter{w: f, ws: "/workspace/projects/abc_123"}
	_, err = rw.Write([]byte("error in /workspace/projects/abc_123/platforms/android"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "abc_123/platforms/android")
	assert.NotContains(t, string(data), "/workspace/projects/abc_123")
}
