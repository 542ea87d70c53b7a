package adminapi

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FileStatusProvider reports a sibling service's status by reading the
// files it publishes to the shared workdir (spec §4.6): presence of
// {id}.lock for "working", and the Unix-millis content of {id}.started for
// "started". The Admin API runs as its own process with no in-memory
// access to the other services, so this is the only channel between them
// besides the backend's own registration records.
type FileStatusProvider struct {
	Name    string
	Workdir string
	Version string
}

// Status implements StatusProvider.
func (p FileStatusProvider) Status() ServiceStatus {
	status := ServiceStatus{Name: p.Name, Version: p.Version}

	if _, err := os.Stat(filepath.Join(p.Workdir, p.Name+".lock")); err == nil {
		status.Working = true
	}

	if data, err := os.ReadFile(filepath.Join(p.Workdir, p.Name+".started")); err == nil {
		if ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil {
			status.Started = time.UnixMilli(ms)
		}
	}

	return status
}
