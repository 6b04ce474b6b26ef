package scheduler

import "sync/atomic"

// Guard enforces single-flight execution: at most one holder at a time.
type Guard struct {
	busy atomic.Bool
}

// TryAcquire takes the guard if it is free. It never blocks.
func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Guard) Release() {
	g.busy.Store(false)
}

func (g *Guard) Busy() bool {
	return g.busy.Load()
}
