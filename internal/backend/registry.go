package backend

import (
	"sync"
)

// Registry counts open containers per path.
//
// A Registry starts empty. Acquire is called after a container opens and
// Release after it closes. When the total count drops back to zero the
// teardown hook runs once, releasing process-wide resources such as pooled
// compressors. A later Acquire starts a new cycle and the hook runs again at
// its end. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu       sync.Mutex
	open     map[string]int
	total    int
	teardown func()
}

// NewRegistry returns an empty registry. teardown may be nil.
func NewRegistry(teardown func()) *Registry {
	return &Registry{
		open:     make(map[string]int),
		teardown: teardown,
	}
}

// Acquire records an open container at path.
func (r *Registry) Acquire(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[path]++
	r.total++
}

// Release records that a container at path closed. Releasing a path that
// is not open is a no-op.
func (r *Registry) Release(path string) {
	r.mu.Lock()
	n, ok := r.open[path]
	if !ok {
		r.mu.Unlock()
		return
	}
	if n <= 1 {
		delete(r.open, path)
	} else {
		r.open[path] = n - 1
	}
	r.total--
	last := r.total == 0
	r.mu.Unlock()

	if last && r.teardown != nil {
		r.teardown()
	}
}

// Count returns the number of open containers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// CountPath returns the number of open containers at path.
func (r *Registry) CountPath(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open[path]
}
