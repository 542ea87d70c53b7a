//go:build windows

package diskpressure

import "golang.org/x/sys/windows"

func freeBytes(path string) (free, total uint64, err error) {
	var freeAvail, totalBytes, totalFree uint64
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeAvail, &totalBytes, &totalFree); err != nil {
		return 0, 0, err
	}
	return freeAvail, totalBytes, nil
}

// ownedByCurrentUser is not meaningful on Windows; spec §5 scopes the
// ownership check to POSIX hosts only.
func ownedByCurrentUser(path string) bool { return true }
