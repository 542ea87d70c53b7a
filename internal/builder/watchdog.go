package builder

import (
	"sync"
	"time"

	"github.com/fleetforge/compiler-worker/internal/ipc"
)

// watchdogDuration is the hard wall-clock budget for one build child, per
// spec §4.3 step 5.
const watchdogDuration = 2_700_000 * time.Millisecond

// resolution is whichever of {IPC message, child exit, watchdog, spawn
// error} fires first for one build-child invocation. ipcResult is only
// meaningful when source is "ipc".
type resolution struct {
	source    string // "ipc", "exit", "watchdog", "spawn_error"
	err       error
	ipcResult ipc.Result
}

// onceLatch resolves exactly once; subsequent attempts are silently
// suppressed, per spec §4.3 step 6 and §9 "first to fire wins."
type onceLatch struct {
	once   sync.Once
	result resolution
	done   chan struct{}
}

func newOnceLatch() *onceLatch {
	return &onceLatch{done: make(chan struct{})}
}

func (l *onceLatch) resolve(r resolution) {
	l.once.Do(func() {
		l.result = r
		close(l.done)
	})
}

func (l *onceLatch) wait() resolution {
	<-l.done
	return l.result
}
