package snapshot

import "sync/atomic"

// AcquireResult is the outcome of a non-blocking guard acquisition.
type AcquireResult int

const (
	// Started means the caller now holds the guard and must Release it.
	Started AcquireResult = iota

	// AlreadyRunning means another scan holds the guard; the caller must
	// return immediately, reporting a no-op, rather than block or queue.
	AlreadyRunning
)

// String returns a human-readable name for the result.
func (r AcquireResult) String() string {
	if r == Started {
		return "started"
	}
	return "already running"
}

// Guard is a non-blocking mutual-exclusion lock for scan entry points.
//
// Full and incremental scans share one Guard so no two rescans ever run
// concurrently. Unlike a mutex, TryAcquire never blocks: a second caller
// is told the scan is already in progress and reports that as a no-op
// success, not an error.
//
// Guard is safe for concurrent use. The zero value is ready to use.
type Guard struct {
	running atomic.Bool
}

// TryAcquire attempts to take the guard without blocking.
func (g *Guard) TryAcquire() AcquireResult {
	if g.running.CompareAndSwap(false, true) {
		return Started
	}
	return AlreadyRunning
}

// Release returns the guard. Only the holder may call it.
func (g *Guard) Release() {
	g.running.Store(false)
}

// Running reports whether the guard is currently held.
func (g *Guard) Running() bool {
	return g.running.Load()
}
