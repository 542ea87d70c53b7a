// Package backendclient wraps the central backend's HTTP API: job fetch,
// result upload, and service registration/heartbeat (spec §4.1, §6). All
// requests carry a fixed bearer credential and a 10s timeout. FetchJob
// retries transient failures through internal/retry; the result upload and
// the registration/heartbeat calls make a single attempt.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/retry"
	"github.com/fleetforge/compiler-worker/internal/types"
	"github.com/fleetforge/compiler-worker/internal/workererrors"
)

// Client is a thin HTTP client bound to one backend base URL and bearer
// credential.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retry      retry.Policy
}

// New creates a Client from backend configuration.
func New(cfg config.BackendConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.BearerToken,
		retry:      retry.DefaultPolicy(),
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// FetchJob posts the worker's locally-installed platforms and returns the
// job the backend hands back, per spec §4.3 step 3. Transient failures
// (network errors, 5xx/429) are retried in-process per c.retry, sleeping
// Policy.Delay(attempt) between tries, so a momentary backend blip doesn't
// cost the Builder a whole poll interval.
func (c *Client) FetchJob(ctx context.Context, platforms []types.Platform) (*types.Job, error) {
	body, err := json.Marshal(struct {
		Platforms []types.Platform `json:"platforms"`
	}{Platforms: platforms})
	if err != nil {
		return nil, fmt.Errorf("marshal fetch-job request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepOrDone(ctx, c.retry.Delay(attempt)); err != nil {
				return nil, err
			}
		}

		job, err := c.doFetchJob(ctx, body)
		if err == nil {
			return job, nil
		}
		lastErr = err
		if !workererrors.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doFetchJob(ctx context.Context, body []byte) (*types.Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/compilation", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, workererrors.Wrap(err, workererrors.CategoryTransient, workererrors.SeverityWarning, "job fetch failed").AsRetryable()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		werr := workererrors.New(workererrors.CategoryTransient, workererrors.SeverityWarning,
			fmt.Sprintf("job fetch returned status %d", resp.StatusCode))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, werr.AsRetryable()
		}
		return nil, werr
	}

	var job types.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode job response: %w", err)
	}
	return &job, nil
}

// sleepOrDone waits for d or returns ctx's error if it's cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ResultUpload is the multipart payload posted back for a terminal job.
type ResultUpload struct {
	Platform    types.Platform
	UserError   string
	StaffError  string
	Machine     string
	ArtifactZip string // path to out/ zip, "" if absent
	StdoutLog   string // path to stdout.log, "" if absent
}

// PostResult uploads a terminal job outcome, per spec §4.5 step 5.
func (c *Client) PostResult(ctx context.Context, code string, up ResultUpload) (*http.Response, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	data, err := json.Marshal(struct {
		Platform   types.Platform `json:"platform"`
		UserError  string         `json:"user_error,omitempty"`
		StaffError string         `json:"staff_error,omitempty"`
		Machine    string         `json:"machine"`
	}{up.Platform, up.UserError, up.StaffError, up.Machine})
	if err != nil {
		return nil, fmt.Errorf("marshal result data: %w", err)
	}
	if err := mw.WriteField("data", string(data)); err != nil {
		return nil, err
	}

	if up.ArtifactZip != "" {
		if err := attachFile(mw, "result", up.ArtifactZip); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	if up.StdoutLog != "" {
		if err := attachFile(mw, "log", up.StdoutLog); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/compilation/%s", c.baseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	return c.httpClient.Do(req)
}

func attachFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// RegisterHost announces this host to the backend, per spec §4.1.
func (c *Client) RegisterHost(ctx context.Context, host, ip, os string) error {
	body, _ := json.Marshal(struct{ Host, IP, OS string }{host, ip, os})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/compilers", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.doBestEffort(req)
}

// RegisterService announces one service under a registered host/IP.
func (c *Client) RegisterService(ctx context.Context, ip, serviceID string) error {
	body, _ := json.Marshal(struct{ ServiceID string }{serviceID})
	url := fmt.Sprintf("%s/api/v1/compilers/%s", c.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.doBestEffort(req)
}

// Heartbeat pings the backend to indicate this service is alive.
func (c *Client) Heartbeat(ctx context.Context, ip, serviceID string) error {
	url := fmt.Sprintf("%s/api/v1/compilers/%s/%s/heartbeat", c.baseURL, ip, serviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	return c.doBestEffort(req)
}

// Deregister tells the backend this service is shutting down.
func (c *Client) Deregister(ctx context.Context, ip, serviceID string) error {
	url := fmt.Sprintf("%s/api/v1/compilers/%s/%s", c.baseURL, ip, serviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	return c.doBestEffort(req)
}

// doBestEffort executes req and returns a non-retryable transient error on
// any failure. Registration/heartbeat failures never block the caller's
// loop, per spec §4.1 — callers log the error and continue.
func (c *Client) doBestEffort(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return workererrors.Wrap(err, workererrors.CategoryTransient, workererrors.SeverityWarning, "registration request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return workererrors.New(workererrors.CategoryTransient, workererrors.SeverityWarning,
			fmt.Sprintf("registration request returned status %d", resp.StatusCode))
	}
	return nil
}
