package updater

import (
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// hostOSSuffix is the object-key suffix for the current host OS, used to
// filter libs/ and sdks/ entries per spec §4.2 step 3.
func hostOSSuffix() string {
	switch runtime.GOOS {
	case "darwin":
		return "darwin"
	case "windows":
		return "win32"
	default:
		return "linux"
	}
}

var (
	rePlatform = regexp.MustCompile(`^platforms/(.+)\.tar\.bz2$`)
	reCompiler = regexp.MustCompile(`^compilers/compiler_cordova_(.+)\.tar\.bz2$`)
	rePlugin   = regexp.MustCompile(`^plugins/(.+)\.tar\.bz2$`)
	reLib      = regexp.MustCompile(`^libs/(.+)-(darwin|linux|win32)\.tar\.bz2$`)
	reSDK      = regexp.MustCompile(`^sdks/(.+)\.tar\.bz2$`)
)

// relevant reports whether key is a tracked entry at all, and if it is
// host-OS-scoped (libs/, sdks/) whether it matches the current host.
func relevant(key string) bool {
	switch {
	case strings.HasPrefix(key, "platforms/"), strings.HasPrefix(key, "compilers/"), strings.HasPrefix(key, "plugins/"):
		return true
	case strings.HasPrefix(key, "libs/"):
		m := reLib.FindStringSubmatch(key)
		return m != nil && m[2] == hostOSSuffix()
	case strings.HasPrefix(key, "sdks/"):
		return reSDK.MatchString(key)
	default:
		return false
	}
}

// outputDir derives the local cache output directory for key, per the
// table in spec §4.2. Returns "" for a key outside the tracked folders.
func outputDir(dataDir, key string) string {
	if m := rePlatform.FindStringSubmatch(key); m != nil {
		return filepath.Join(dataDir, "platforms", m[1])
	}
	if m := reCompiler.FindStringSubmatch(key); m != nil {
		return filepath.Join(dataDir, "compilers", m[1])
	}
	if m := rePlugin.FindStringSubmatch(key); m != nil {
		return filepath.Join(dataDir, "plugins", m[1])
	}
	if m := reLib.FindStringSubmatch(key); m != nil {
		return filepath.Join(dataDir, "libs", m[1])
	}
	if m := reSDK.FindStringSubmatch(key); m != nil {
		return filepath.Join(dataDir, "sdks", m[1])
	}
	return ""
}
