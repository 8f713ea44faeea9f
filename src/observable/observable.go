// Package observable provides a value cell that notifies listeners on change.
package observable

import (
	"reflect"
	"sync"
)

// Readable is the read-only view of a Cell.
type Readable[T any] interface {
	Value() T
	AddListener(fn func(T)) func()
}

type listener[T any] struct {
	id uint64
	fn func(T)
}

// Cell holds a value and notifies listeners when it changes.
// Cell is safe for concurrent use. Listeners run synchronously inside Set,
// outside the cell's lock, in registration order.
type Cell[T any] struct {
	mu        sync.RWMutex
	value     T
	equal     func(a, b T) bool
	listeners []listener[T]
	nextID    uint64
}

// New creates a cell holding initial. Values are compared with reflect.DeepEqual.
func New[T any](initial T) *Cell[T] {
	return NewWithEquality(initial, func(a, b T) bool {
		return reflect.DeepEqual(a, b)
	})
}

// NewWithEquality creates a cell that only notifies when equal reports a change.
// A nil equal notifies on every Set.
func NewWithEquality[T any](initial T, equal func(a, b T) bool) *Cell[T] {
	return &Cell[T]{
		value: initial,
		equal: equal,
	}
}

func (c *Cell[T]) Value() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and notifies listeners if the value changed.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	if c.equal != nil && c.equal(c.value, v) {
		c.mu.Unlock()
		return
	}
	c.value = v
	snapshot := make([]listener[T], len(c.listeners))
	copy(snapshot, c.listeners)
	c.mu.Unlock()

	for _, l := range snapshot {
		l.fn(v)
	}
}

// Update applies transform to the current value and stores the result.
func (c *Cell[T]) Update(transform func(T) T) {
	c.Set(transform(c.Value()))
}

// AddListener registers fn and returns a function that removes it.
func (c *Cell[T]) AddListener(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ReadOnly returns c as a Readable so holders cannot Set it.
func (c *Cell[T]) ReadOnly() Readable[T] {
	return readOnly[T]{c: c}
}

type readOnly[T any] struct {
	c *Cell[T]
}

func (r readOnly[T]) Value() T {
	return r.c.Value()
}

func (r readOnly[T]) AddListener(fn func(T)) func() {
	return r.c.AddListener(fn)
}
