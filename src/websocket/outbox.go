package websocket

import "github.com/eapache/queue"

// outbox holds messages accepted while the session was not open.
// It is guarded by the session mutex.
type outbox struct {
	q *queue.Queue
}

func newOutbox() *outbox {
	return &outbox{q: queue.New()}
}

func (o *outbox) push(msg Message) {
	o.q.Add(msg)
}

func (o *outbox) peek() Message {
	return o.q.Peek().(Message)
}

func (o *outbox) pop() {
	o.q.Remove()
}

func (o *outbox) len() int {
	return o.q.Length()
}

func (o *outbox) reset() {
	o.q = queue.New()
}
