package solver

import (
	"sync"
	"sync/atomic"

	"github.com/R3E-Network/solver_layer/internal/errors"
)

// Lock is the reentrancy guard of a solver instance. At most one guarded
// call holds it at a time; a nested or concurrent attempt is rejected rather
// than queued.
type Lock struct {
	held atomic.Bool
}

// Acquire takes the lock and returns its release function. Callers must
// defer the release immediately so every exit path frees the lock.
func (l *Lock) Acquire() (func(), error) {
	if !l.held.CompareAndSwap(false, true) {
		return nil, errors.ReentrantCall()
	}
	var once sync.Once
	return func() {
		once.Do(func() { l.held.Store(false) })
	}, nil
}

// Held reports whether a guarded call is in flight.
func (l *Lock) Held() bool {
	return l.held.Load()
}
