package platform

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetforge/compiler-worker/internal/types"
)

// artifactName is the shared out/{code}_{platform}_{epochmillis}.zip naming
// convention every backend's Pack uses, per spec §4.4.
func artifactName(job *types.Job) string {
	return fmt.Sprintf("%s_%s_%d.zip", job.Code, job.Platform, time.Now().UnixMilli())
}

// zipFiles packs the given files (src path -> archive name) into a single
// zip at outPath, the shared helper behind every backend's Pack.
func zipFiles(outPath string, files map[string]string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	for src, archiveName := range files {
		if err := addZipEntry(zw, src, archiveName); err != nil {
			return err
		}
	}
	return nil
}

func addZipEntry(zw *zip.Writer, src, archiveName string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.Create(archiveName)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// ensureCertsDir creates (and returns) the workspace's certs/ directory,
// shared by every signed backend for staging imported keystores/p12s/PFXs.
func ensureCertsDir(ws *types.Workspace) (string, error) {
	if err := os.MkdirAll(ws.CertsDir(), 0o700); err != nil {
		return "", err
	}
	return ws.CertsDir(), nil
}

// findFirst walks root and returns the first non-directory path for which
// match returns true, used by artifact-location logic across backends.
func findFirst(root string, match func(path string) bool) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || found != "" {
			return err
		}
		if !d.IsDir() && match(path) {
			found = path
		}
		return nil
	})
	return found, err
}
