// Package eventloop runs callbacks one at a time, in the order they were posted.
package eventloop

import (
	"sync"

	"github.com/eapache/queue"
)

// Serial is an unbounded FIFO executor. At most one goroutine drains it at a
// time and it exits once the queue is empty, so an idle Serial holds no
// goroutine. Post never blocks and may be called from a running callback.
type Serial struct {
	mu      sync.Mutex
	q       *queue.Queue
	running bool
}

func NewSerial() *Serial {
	return &Serial{
		q: queue.New(),
	}
}

// Post enqueues fn.
func (s *Serial) Post(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.q.Add(fn)
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	go s.drain()
}

// Sync blocks until every callback posted before it has run.
// It must not be called from inside a posted callback.
func (s *Serial) Sync() {
	done := make(chan struct{})
	s.Post(func() { close(done) })
	<-done
}

// Len reports the number of callbacks waiting to run.
func (s *Serial) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Length()
}

func (s *Serial) drain() {
	for {
		s.mu.Lock()
		if s.q.Length() == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.q.Remove().(func())
		s.mu.Unlock()
		fn()
	}
}
