// Package lifecycle provides owner scopes that run cleanups on teardown.
package lifecycle

import (
	"context"
	"sync"
)

// Owner is anything a cleanup can be attached to.
type Owner interface {
	// OnDispose registers cleanup and returns a function that unregisters it.
	OnDispose(cleanup func()) func()
}

// Scope collects cleanups and runs them once, in reverse order, on Dispose.
type Scope struct {
	mu        sync.Mutex
	disposers []func()
	disposed  bool
}

func NewScope() *Scope {
	return &Scope{}
}

// OnDispose registers a cleanup function to be called when the scope is disposed.
// If the scope is already disposed, cleanup runs immediately.
func (s *Scope) OnDispose(cleanup func()) func() {
	if cleanup == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		cleanup()
		return func() {}
	}
	index := len(s.disposers)
	s.disposers = append(s.disposers, cleanup)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if index < len(s.disposers) {
			s.disposers[index] = nil
		}
	}
}

// Dispose runs all registered cleanups in LIFO order. Later calls are no-ops.
func (s *Scope) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	disposers := s.disposers
	s.disposers = nil
	s.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		if disposers[i] != nil {
			disposers[i]()
		}
	}
}

func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// FromContext returns a scope that is disposed when ctx is done.
func FromContext(ctx context.Context) *Scope {
	s := NewScope()
	context.AfterFunc(ctx, s.Dispose)
	return s
}
