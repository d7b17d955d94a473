package installer

import "sync/atomic"

// Guard admits one holder at a time. Callers that lose the race are
// rejected rather than queued.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire takes the guard if it is free.
func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the guard.
func (g *Guard) Release() {
	g.busy.Store(false)
}

// Busy reports whether the guard is held.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}
