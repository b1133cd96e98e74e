// Package handle provides scope-owned wrappers around backend resources.
//
// A Handle releases its resource exactly once. A Scope collects handles and
// releases them in reverse acquisition order when it is closed, so a single
// deferred Close covers every exit path of an operation.
package handle

import (
	"sync"

	"go.uber.org/multierr"
)

// Handle owns a resource of type T together with the function releasing it.
// The zero value is an empty handle.
type Handle[T any] struct {
	value   T
	release func(T) error
	once    *sync.Once
	valid   bool
}

// New wraps value so that release is called on it at most once.
func New[T any](value T, release func(T) error) *Handle[T] {
	return &Handle[T]{
		value:   value,
		release: release,
		once:    new(sync.Once),
		valid:   true,
	}
}

// Get returns the owned value. It returns the zero value for an empty handle.
func (h *Handle[T]) Get() T {
	if h == nil || !h.valid {
		var zero T
		return zero
	}
	return h.value
}

// Valid reports whether the handle still owns a resource.
func (h *Handle[T]) Valid() bool {
	return h != nil && h.valid
}

// Release releases the resource. Subsequent calls are no-ops.
func (h *Handle[T]) Release() error {
	if h == nil || !h.valid {
		return nil
	}
	var err error
	h.once.Do(func() {
		if h.release != nil {
			err = h.release(h.value)
		}
	})
	h.invalidate()
	return err
}

// Move transfers ownership to a new handle and leaves h empty, so only the
// returned handle will release the resource.
func (h *Handle[T]) Move() *Handle[T] {
	if h == nil || !h.valid {
		return &Handle[T]{}
	}
	moved := &Handle[T]{
		value:   h.value,
		release: h.release,
		once:    h.once,
		valid:   true,
	}
	h.invalidate()
	return moved
}

func (h *Handle[T]) invalidate() {
	var zero T
	h.value = zero
	h.release = nil
	h.valid = false
}

type releaser interface {
	Release() error
}

// Scope releases the handles added to it in LIFO order.
type Scope struct {
	mu       sync.Mutex
	handles  []releaser
	released bool
}

// NewScope returns an empty scope.
func NewScope() *Scope {
	return &Scope{}
}

// Add registers a handle with the scope and returns it.
func Add[T any](s *Scope, h *Handle[T]) *Handle[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		// Closed scope: release right away.
		_ = h.Release()
		return h
	}
	s.handles = append(s.handles, h)
	return h
}

// Len returns the number of handles held by the scope.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Close releases every handle in reverse order of registration and returns
// the combined release errors. Closing twice is a no-op.
func (s *Scope) Close() error {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.released = true
	s.mu.Unlock()

	var err error
	for i := len(handles) - 1; i >= 0; i-- {
		err = multierr.Append(err, handles[i].Release())
	}
	return err
}
