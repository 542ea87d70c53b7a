// Package diskpressure checks free space on the root and home filesystems
// and purges scratch build directories when either is low (spec §5). No
// third-party disk-usage library exists across the example pool; this is
// the one concern implemented on the standard library by necessity.
package diskpressure

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetforge/compiler-worker/internal/config"
	"github.com/fleetforge/compiler-worker/internal/logfields"
	"github.com/fleetforge/compiler-worker/internal/observability"
)

// Checker purges npm-/git scratch entries under the OS temp dir and the npm
// cache when either Root or Home crosses the configured free-space thresholds.
type Checker struct {
	Root, Home string
	Thresholds config.DiskPressureConfig
}

// New constructs a Checker with the given thresholds.
func New(root, home string, thresholds config.DiskPressureConfig) *Checker {
	return &Checker{Root: root, Home: home, Thresholds: thresholds}
}

// CheckAndPurge runs the pressure check and, if tripped, purges candidate
// tmp directories. Called before each Builder iteration per spec §5.
func (c *Checker) CheckAndPurge(ctx context.Context) error {
	under, err := c.underPressure()
	if err != nil {
		return err
	}
	if !under {
		return nil
	}

	observability.WarnContext(ctx, "disk pressure detected, purging tmp dirs")
	return c.purge(ctx)
}

func (c *Checker) underPressure() (bool, error) {
	for _, path := range []string{c.Root, c.Home} {
		if path == "" {
			continue
		}
		free, total, err := freeBytes(path)
		if err != nil {
			return false, err
		}
		if free < uint64(c.Thresholds.MinFreeBytes) {
			return true, nil
		}
		if total > 0 && float64(free)/float64(total) < c.Thresholds.MinFreePercent {
			return true, nil
		}
	}
	return false, nil
}

// purge removes entries under os.TempDir() beginning with "npm-" or "git",
// owned by the current user (POSIX only), plus the package-manager cache.
func (c *Checker) purge(ctx context.Context) error {
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "npm-") && !strings.HasPrefix(name, "git") {
			continue
		}
		full := filepath.Join(os.TempDir(), name)
		if !ownedByCurrentUser(full) {
			continue
		}
		observability.InfoContext(ctx, "purging tmp dir", logfields.Path(full))
		_ = os.RemoveAll(full)
	}
	return c.purgePackageManagerCache(ctx)
}

func (c *Checker) purgePackageManagerCache(ctx context.Context) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	cache := filepath.Join(home, ".npm", "_cacache")
	if _, err := os.Stat(cache); err == nil {
		observability.InfoContext(ctx, "purging package manager cache", logfields.Path(cache))
		_ = os.RemoveAll(cache)
	}
	return nil
}
