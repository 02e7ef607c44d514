// internal/duel/timer.go
package duel

import (
	"sync"
	"time"
)

// turnTimer guards a single pending countdown. Start hands the callback the
// generation it was armed with; the callback compares it against Gen before
// acting, so a callback that fires after Stop or a restart is dropped as
// stale.
type turnTimer struct {
	mu  sync.Mutex
	t   *time.Timer
	gen int
}

// Start arms the timer, cancelling any pending countdown, and returns the
// new generation.
func (tt *turnTimer) Start(d time.Duration, fire func(gen int)) int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.t != nil {
		tt.t.Stop()
	}
	tt.gen++
	gen := tt.gen
	tt.t = time.AfterFunc(d, func() { fire(gen) })
	return gen
}

// Stop cancels any pending countdown and invalidates outstanding callbacks.
func (tt *turnTimer) Stop() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.gen++
	if tt.t != nil {
		tt.t.Stop()
		tt.t = nil
	}
}

// Gen returns the current generation.
func (tt *turnTimer) Gen() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return tt.gen
}
