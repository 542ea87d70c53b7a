package buildpipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const fetchTimeout = 10 * time.Second

// Init fetches config.xml and source.zip and ensures the job's cordova-lib
// version is importable, per spec §4.4 "init".
func Init(ctx context.Context, pc *Context) error {
	if err := os.MkdirAll(pc.Workspace.Root, 0o755); err != nil {
		return fail("init", fmt.Sprintf("create workspace: %v", err), "Could not create the build workspace.")
	}

	if err := fetchInto(ctx, pc.Job.ConfigURL, pc.ConfigRoot, pc.Workspace.ConfigXML()); err != nil {
		return fail("init", fmt.Sprintf("fetch config.xml: %v", err), "Could not download the project configuration.")
	}
	if err := fetchInto(ctx, pc.Job.SourceURL, pc.ConfigRoot, pc.Workspace.SourceZip()); err != nil {
		return fail("init", fmt.Sprintf("fetch source.zip: %v", err), "Could not download the project sources.")
	}

	if err := ensureCordovaLib(ctx, pc.Job.LibVersion); err != nil {
		return fail("init", fmt.Sprintf("install cordova-lib@%s: %v", pc.Job.LibVersion, err),
			"Could not prepare the native build library for this job.")
	}

	return nil
}

// fetchInto resolves src either as an absolute URL or, when not, as a path
// relative to configRoot, and writes the result to dest.
func fetchInto(ctx context.Context, src, configRoot, dest string) error {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return downloadHTTP(ctx, src, dest)
	}
	return copyLocal(filepath.Join(configRoot, src), dest)
}

func downloadHTTP(ctx context.Context, url, dest string) error {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func copyLocal(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// cordovaLibDir is where per-version cordova-lib installs live, shared
// across all jobs on this host.
func cordovaLibDir(version string) string {
	return filepath.Join("libs", "cordova-lib@"+version)
}

// ensureCordovaLib installs the given cordova-lib version via the host
// package manager (npm) if it isn't already present.
func ensureCordovaLib(ctx context.Context, version string) error {
	dir := cordovaLibDir(version)
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "npm", "install", "cordova-lib@"+version, "--prefix", dir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("npm install: %w: %s", err, string(out))
	}
	return nil
}
