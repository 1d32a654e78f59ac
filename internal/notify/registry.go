// Package notify implements the observer registry shared by the contact
// directory and call sessions.
//
// A notify pass snapshots the registered listeners under the lock and then
// invokes them with the lock released, so listeners may subscribe,
// unsubscribe or read the owning store without deadlocking. Listeners added
// during a pass are first called on the next pass; listeners removed during a
// pass are not called for the remainder of it.
package notify

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	apperrors "favoro/pkg/errors"
)

type Listener func()

type entry struct {
	id    uint64
	fn    Listener
	alive bool
}

type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []*entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Subscribe registers fn and returns a function that removes exactly this
// registration. The returned function is safe to call more than once.
func (r *Registry) Subscribe(fn Listener) func() {
	r.mu.Lock()
	r.nextID++
	e := &entry{id: r.nextID, fn: fn, alive: true}
	r.entries = append(r.entries, e)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(e.id) })
	}
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			e.alive = false
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Notify runs one pass over the current listeners. A panicking listener does
// not stop the pass; every failure is returned as a LISTENER_FAILURE error.
func (r *Registry) Notify() error {
	r.mu.Lock()
	snapshot := make([]*entry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	var errs error
	for _, e := range snapshot {
		if !r.isAlive(e) {
			continue
		}
		if err := invoke(e); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (r *Registry) isAlive(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return e.alive
}

func invoke(e *entry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperrors.NewWithDetails(
				apperrors.CodeListenerFailure,
				fmt.Sprintf("listener %d panicked", e.id),
				fmt.Sprint(rec),
			)
		}
	}()
	e.fn()
	return nil
}
