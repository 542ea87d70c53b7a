package workererrors

import "strconv"

// Convenience constructors for error patterns that recur across services.

// InputError is a malformed/invalid job or request — never retried.
func InputError(message, public string) *WorkerError {
	return New(CategoryInput, SeverityWarning, message).Public(public)
}

// BuildToolFailed wraps a non-zero native toolchain exit. The tail of
// cordova.log is appended to the public message by the caller (Builder §4.3
// step 6), not here, since only the Builder has access to the log file.
func BuildToolFailed(stage string, cause error, public string) *WorkerError {
	return Wrap(cause, CategoryBuildTool, SeverityFatal, "build tool failed in stage "+stage).Public(public)
}

// WatchdogFired synthesizes the fixed terminal error for a build child killed
// by the wall-clock watchdog.
func WatchdogFired() *WorkerError {
	return New(CategoryWatchdog, SeverityFatal, "Compilation took too long, killing...").
		Public("The compilation exceed the designated time.")
}

// ChildCrashed synthesizes a terminal error from a build child's exit code and
// signal when it produced no terminal IPC message.
func ChildCrashed(exitCode int, signal string) *WorkerError {
	msg := "Process exited abnormally (" + signal + "): " + strconv.Itoa(exitCode)
	return New(CategoryChildCrash, SeverityFatal, msg).Public(msg)
}

// UpdaterSyncFailed wraps a failure during one Updater reconcile iteration.
func UpdaterSyncFailed(cause error) *WorkerError {
	return Wrap(cause, CategoryUpdater, SeverityError, "dependency cache sync failed")
}

// TransientNetwork marks a backend/network failure as retryable.
func TransientNetwork(cause error, message string) *WorkerError {
	return Wrap(cause, CategoryTransient, SeverityWarning, message).AsRetryable()
}
