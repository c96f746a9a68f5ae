package logfwd

import "sync/atomic"

// reentrancyGuard marks the goroutine currently talking to the transport.
// Records submitted from that goroutine while the guard is held are dropped.
type reentrancyGuard struct {
	holder atomic.Uint64
}

// enter records gid as the holder and returns the function restoring the previous holder.
// Callers defer the returned function so every exit path restores it.
func (g *reentrancyGuard) enter(gid uint64) func() {
	prev := g.holder.Swap(gid)
	return func() {
		g.holder.Store(prev)
	}
}

// heldBy reports whether gid currently holds the guard
func (g *reentrancyGuard) heldBy(gid uint64) bool {
	return gid != 0 && g.holder.Load() == gid
}
