// Package updater implements the Updater service: reconciling the local
// dependency cache against the remote object-store manifest on a fixed
// interval and gating the Builder with a readiness marker (spec §4.2).
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetforge/compiler-worker/internal/logfields"
	"github.com/fleetforge/compiler-worker/internal/metrics"
	"github.com/fleetforge/compiler-worker/internal/objectstore"
	"github.com/fleetforge/compiler-worker/internal/observability"
	"github.com/fleetforge/compiler-worker/internal/types"
)

const manifestFile = "s3_structure.json"
const readyLockFile = "ready.lock"

// Updater reconciles dataDir against the bucket listing it fetches from
// store on each Sync call.
type Updater struct {
	DataDir string
	Store   *objectstore.Client
	Metrics metrics.Recorder
}

// New constructs an Updater. If m is nil, a NoopRecorder is used.
func New(dataDir string, store *objectstore.Client, m metrics.Recorder) *Updater {
	if m == nil {
		m = metrics.NoopRecorder{}
	}
	return &Updater{DataDir: dataDir, Store: store, Metrics: m}
}

func (u *Updater) syncDir() string       { return filepath.Join(u.DataDir, "sync") }
func (u *Updater) manifestPath() string  { return filepath.Join(u.DataDir, manifestFile) }
func (u *Updater) readyLockPath() string { return filepath.Join(u.DataDir, readyLockFile) }

// Sync runs one reconciliation iteration, per spec §4.2.
func (u *Updater) Sync(ctx context.Context) error {
	start := time.Now()
	downloads, purges := 0, 0
	defer func() {
		u.Metrics.ObserveUpdaterSyncDuration(time.Since(start), downloads, purges)
	}()

	if err := os.MkdirAll(u.DataDir, 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	if err := os.RemoveAll(u.syncDir()); err != nil {
		return fmt.Errorf("clear sync dir: %w", err)
	}
	if err := os.MkdirAll(u.syncDir(), 0o755); err != nil {
		return fmt.Errorf("create sync dir: %w", err)
	}

	prior, err := u.loadManifest()
	if err != nil {
		return fmt.Errorf("load prior manifest: %w", err)
	}

	remote, err := u.Store.List(ctx)
	if err != nil {
		u.Metrics.IncUpdaterSyncError()
		return fmt.Errorf("list bucket: %w", err)
	}

	for key, entry := range remote {
		if !relevant(key) {
			continue
		}
		dir := outputDir(u.DataDir, key)
		if dir == "" {
			continue
		}

		status := u.syncStatus(prior, entry, dir)
		if status != statusDownload {
			continue
		}

		observability.InfoContext(ctx, "downloading dependency", logfields.ObjectKey(key), logfields.Path(dir))
		if err := u.download(ctx, key, dir); err != nil {
			u.Metrics.IncUpdaterSyncError()
			return fmt.Errorf("download %s: %w", key, err)
		}
		downloads++
	}

	purges = u.purge(ctx, prior, remote)

	if err := u.persistManifest(remote); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	if err := os.RemoveAll(u.syncDir()); err != nil {
		return fmt.Errorf("clean sync dir: %w", err)
	}
	if len(remote) > 0 {
		if err := u.touchReadyLock(); err != nil {
			return fmt.Errorf("touch ready lock: %w", err)
		}
	}

	return nil
}

type syncState int

const (
	statusIgnore syncState = iota
	statusDownload
)

func (u *Updater) syncStatus(prior types.Manifest, remote types.ManifestEntry, outDir string) syncState {
	if _, err := os.Stat(outDir); err != nil {
		return statusDownload
	}
	priorEntry, ok := prior[remote.Key]
	if !ok {
		return statusDownload
	}
	if priorEntry.LastModified != remote.LastModified {
		return statusDownload
	}
	return statusIgnore
}

func (u *Updater) download(ctx context.Context, key, outDir string) error {
	basename := filepath.Base(key)
	archivePath := filepath.Join(u.syncDir(), basename)

	f, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive staging file: %w", err)
	}
	_, dlErr := u.Store.DownloadTo(ctx, key, f)
	closeErr := f.Close()
	if dlErr != nil {
		return dlErr
	}
	if closeErr != nil {
		return closeErr
	}

	return extractTarBz2(archivePath, outDir)
}

// purge removes output directories for manifest entries present before but
// absent from the new listing, per spec §4.2 step 6.
func (u *Updater) purge(ctx context.Context, prior, remote types.Manifest) int {
	count := 0
	for key := range prior {
		if _, stillThere := remote[key]; stillThere {
			continue
		}
		dir := outputDir(u.DataDir, key)
		if dir == "" {
			continue
		}
		observability.InfoContext(ctx, "purging removed dependency", logfields.ObjectKey(key), logfields.Path(dir))
		_ = os.RemoveAll(dir)
		count++
	}
	return count
}

func (u *Updater) loadManifest() (types.Manifest, error) {
	data, err := os.ReadFile(u.manifestPath())
	if os.IsNotExist(err) {
		return types.Manifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

func (u *Updater) persistManifest(m types.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(u.manifestPath(), data, 0o644)
}

func (u *Updater) touchReadyLock() error {
	f, err := os.OpenFile(u.readyLockPath(), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Ready reports whether the readiness marker exists, per spec §3/§4.3 step 1.
func Ready(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, readyLockFile))
	return err == nil
}
