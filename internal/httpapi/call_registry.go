package httpapi

import (
	"sync"
	"sync/atomic"
)

// CallRegistry tracks in-flight IVR requests and open transcript streams and
// supports graceful draining. When draining is enabled, new work is rejected
// while in-flight work finishes naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Add(), preventing
// a TOCTOU race where StartDraining+Wait could be called between the draining
// check and wg.Add.
type CallRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64

	hooks    map[uint64]func()
	nextHook uint64
}

// NewCallRegistry creates a new CallRegistry.
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{}
}

// Add registers new work. Returns false if the registry is draining.
func (cr *CallRegistry) Add() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.draining {
		return false
	}
	cr.wg.Add(1)
	cr.count.Add(1)
	return true
}

// Done marks work as completed. Must be called exactly once per successful Add.
func (cr *CallRegistry) Done() {
	cr.count.Add(-1)
	cr.wg.Done()
}

// StartDraining sets the draining flag so that future Add calls return false,
// then runs every registered drain hook once.
func (cr *CallRegistry) StartDraining() {
	cr.mu.Lock()
	if cr.draining {
		cr.mu.Unlock()
		return
	}
	cr.draining = true
	hooks := make([]func(), 0, len(cr.hooks))
	for _, fn := range cr.hooks {
		hooks = append(hooks, fn)
	}
	cr.hooks = nil
	cr.mu.Unlock()

	// Hooks run outside the lock; they may call back into the registry.
	for _, fn := range hooks {
		fn()
	}
}

// OnDrain registers fn to run when draining starts. Long-lived work such as
// open streams uses it to wind down instead of waiting for the client. If the
// registry is already draining, fn runs immediately. The returned cancel
// removes the hook.
func (cr *CallRegistry) OnDrain(fn func()) (cancel func()) {
	cr.mu.Lock()
	if cr.draining {
		cr.mu.Unlock()
		fn()
		return func() {}
	}
	if cr.hooks == nil {
		cr.hooks = make(map[uint64]func())
	}
	id := cr.nextHook
	cr.nextHook++
	cr.hooks[id] = fn
	cr.mu.Unlock()

	return func() {
		cr.mu.Lock()
		defer cr.mu.Unlock()
		delete(cr.hooks, id)
	}
}

// IsDraining reports whether the registry is in draining mode.
func (cr *CallRegistry) IsDraining() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.draining
}

// ActiveCount returns the number of in-flight requests and streams.
func (cr *CallRegistry) ActiveCount() int64 {
	return cr.count.Load()
}

// Wait blocks until all registered work has completed.
func (cr *CallRegistry) Wait() {
	cr.wg.Wait()
}
