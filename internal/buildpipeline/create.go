package buildpipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Create invokes the native-lib project creator, assembles the project's web
// root, hooks and node_modules from the extracted source archive, and fetches
// the icon and splash from the job's icon/splash URLs, per spec §4.4 "create".
func Create(ctx context.Context, pc *Context) error {
	pc.ProjectName = pc.Job.Code

	if err := os.MkdirAll(pc.Workspace.ProjectDir(), 0o755); err != nil {
		return fail("create", fmt.Sprintf("create project dir: %v", err), "Could not create the project directory.")
	}
	cmd := exec.CommandContext(ctx, cordovaBin(pc.Job.LibVersion), "create", pc.Workspace.ProjectDir(), "--no-telemetry")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fail("create", fmt.Sprintf("cordova create: %v: %s", err, out), "Could not create the native project.")
	}

	if err := copyLocal(pc.Workspace.ConfigXML(), filepath.Join(pc.Workspace.ProjectDir(), "config.xml")); err != nil {
		return fail("create", fmt.Sprintf("copy config.xml: %v", err), "Could not place the project configuration.")
	}

	if err := os.MkdirAll(pc.Workspace.TmpDir(), 0o755); err != nil {
		return fail("create", fmt.Sprintf("create tmp dir: %v", err), "Could not prepare extraction workspace.")
	}
	if err := unzip(pc.Workspace.SourceZip(), pc.Workspace.TmpDir()); err != nil {
		return fail("create", fmt.Sprintf("extract source.zip: %v", err), "Could not extract the project sources.")
	}

	webRoot, err := locateWebRoot(pc.Workspace.TmpDir())
	if err != nil {
		return fail("create", err.Error(), "Could not locate an index.html in the project sources.")
	}
	if err := copyTree(webRoot, filepath.Join(pc.Workspace.ProjectDir(), "www")); err != nil {
		return fail("create", fmt.Sprintf("copy web root: %v", err), "Could not assemble the project's web root.")
	}

	for _, extra := range []string{"hooks", "node_modules"} {
		src := filepath.Join(webRoot, extra)
		if _, err := os.Stat(src); err == nil {
			_ = copyTree(src, filepath.Join(pc.Workspace.ProjectDir(), extra))
		}
	}

	if err := os.MkdirAll(pc.Workspace.IconsDir(), 0o755); err != nil {
		return fail("create", fmt.Sprintf("create icons dir: %v", err), "Could not prepare icon assets.")
	}
	if err := os.MkdirAll(pc.Workspace.SplashesDir(), 0o755); err != nil {
		return fail("create", fmt.Sprintf("create splashes dir: %v", err), "Could not prepare splash assets.")
	}
	if pc.Job.IconURL != "" {
		if err := fetchInto(ctx, pc.Job.IconURL, pc.ConfigRoot, filepath.Join(pc.Workspace.IconsDir(), "icon.png")); err != nil {
			return fail("create", fmt.Sprintf("fetch icon: %v", err), "Could not download the app icon.")
		}
	}
	if pc.Job.SplashURL != "" {
		if err := fetchInto(ctx, pc.Job.SplashURL, pc.ConfigRoot, filepath.Join(pc.Workspace.SplashesDir(), "splash.png")); err != nil {
			return fail("create", fmt.Sprintf("fetch splash: %v", err), "Could not download the splash screen.")
		}
	}

	return nil
}

func cordovaBin(libVersion string) string {
	return filepath.Join(cordovaLibDir(libVersion), "node_modules", ".bin", "cordova")
}

// locateWebRoot finds the entry containing an index.html* anywhere under
// root and returns its parent directory, per spec §4.4 "create".
func locateWebRoot(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return err
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), "index.html") {
			found = filepath.Dir(path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no index.html found under %s", root)
	}
	return found, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyLocal(path, target)
	})
}

// unzip extracts archivePath into dest, rejecting any entry that would
// escape dest (tar-slip guard, per the same convention used in
// internal/updater/extract.go).
func unzip(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		rel, err := filepath.Rel(dest, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
