package listener

import (
	"sync"
	"sync/atomic"
)

// Registry is a copy-on-write multi-listener set: reads (Snapshot, Len)
// never block on a writer, so dispatch is never
// interleaved by a concurrent mutation. It keeps an atomic.Pointer to
// the current slice and only locks for Add/Remove.
type Registry struct {
	mu     sync.Mutex
	sinks  atomic.Pointer[[]entry]
	nextID int64
}

type entry struct {
	id   int64
	sink Sink
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := make([]entry, 0)
	r.sinks.Store(&empty)
	return r
}

// Add registers sink and returns an opaque id for later Remove.
func (r *Registry) Add(sink Sink) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	old := *r.sinks.Load()
	next := make([]entry, len(old)+1)
	copy(next, old)
	next[len(old)] = entry{id: id, sink: sink}
	r.sinks.Store(&next)

	return id
}

// Remove unregisters the sink added under id. It is a no-op if id is
// unknown.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.sinks.Load()
	idx := -1
	for i, e := range old {
		if e.id == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	next := make([]entry, 0, len(old)-1)
	next = append(next, old[:idx]...)
	next = append(next, old[idx+1:]...)
	r.sinks.Store(&next)
}

// Snapshot returns the currently registered sinks, in registration
// order. The caller may iterate it without further synchronization.
func (r *Registry) Snapshot() []Sink {
	old := *r.sinks.Load()
	out := make([]Sink, len(old))
	for i, e := range old {
		out[i] = e.sink
	}
	return out
}

// Len reports how many sinks are currently registered.
func (r *Registry) Len() int {
	return len(*r.sinks.Load())
}
