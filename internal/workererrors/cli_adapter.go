package workererrors

import (
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit-code determination for
// the error a subcommand returns. Daemon mode never exits on a per-job error:
// loop iteration errors are logged inside the service and never returned.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor returns 0 for a nil error and -1 for any other error, matching
// the one-shot exit-code contract.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return -1
}

// FormatError formats err for display on stderr.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	if we, ok := err.(*WorkerError); ok {
		if a.verbose {
			return we.Error()
		}
		return fmt.Sprintf("%s: %s", we.Category, we.Message)
	}
	return fmt.Sprintf("error: %v", err)
}

// HandleError logs err (if warranted), prints it, and terminates the process
// with the matching exit code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	a.logError(err)
	fmt.Fprintln(os.Stderr, a.FormatError(err))
	os.Exit(a.ExitCodeFor(err))
}

func (a *CLIErrorAdapter) logError(err error) {
	if we, ok := err.(*WorkerError); ok {
		level := slog.LevelError
		if we.Severity == SeverityWarning {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{slog.String("category", string(we.Category))}
		if we.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}
		a.logger.LogAttrs(nil, level, we.Message, attrs...)
		return
	}
	a.logger.Error("unclassified error", "error", err)
}
