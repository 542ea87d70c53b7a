package backendclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/retry"
	"github.com/fleetforge/compiler-worker/internal/types"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := New(config.BackendConfig{BaseURL: srv.URL, RequestTimeout: 5 * time.Second})
	c.retry = retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
	return c
}

func TestFetchJobRetriesTransientFailureThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"abc123"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	job, err := c.FetchJob(t.Context(), []types.Platform{types.PlatformAndroid})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "abc123", job.Code)
	assert.Equal(t, 2, calls)
}

func TestFetchJobGivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchJob(t.Context(), []types.Platform{types.PlatformAndroid})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // first attempt + 2 retries
}

func TestFetchJobNoContentMeansNoJobAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	job, err := c.FetchJob(t.Context(), []types.Platform{types.PlatformAndroid})
	require.NoError(t, err)
	assert.Nil(t, job)
}
