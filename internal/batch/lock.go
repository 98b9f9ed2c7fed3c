package batch

import "sync/atomic"

// runGuard admits one Run per Batch at a time. A second Run while one is
// active fails fast with ErrInProgress instead of waiting.
type runGuard struct {
	running atomic.Bool
}

// enter claims the batch, reporting false when a Run already holds it
func (g *runGuard) enter() bool {
	return g.running.CompareAndSwap(false, true)
}

// leave hands the batch back; only the Run that entered calls it
func (g *runGuard) leave() {
	g.running.Store(false)
}
