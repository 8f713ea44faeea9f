package websocket

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errRefused = errors.New("connection refused")

type dialPlan int

const (
	planManual dialPlan = iota
	planOpen
	planRefuse
)

// fakeDialer hands out fakeConns whose events are driven by the test.
type fakeDialer struct {
	mu    sync.Mutex
	plan  func(n int) dialPlan
	conns []*fakeConn
	times []time.Time
	// Echo heartbeat messages back from every conn.
	autoPong Message
	dialed   chan *fakeConn
}

func newFakeDialer(plan func(n int) dialPlan) *fakeDialer {
	if plan == nil {
		plan = func(int) dialPlan { return planManual }
	}
	return &fakeDialer{
		plan:   plan,
		dialed: make(chan *fakeConn, 1024),
	}
}

func (d *fakeDialer) Dial(url string, protocols []string, h Handler) Transport {
	c := &fakeConn{
		h:         h,
		url:       url,
		protocols: protocols,
		events:    make(chan func(), 64),
		echoClose: true,
	}
	go func() {
		for fn := range c.events {
			fn()
		}
	}()

	d.mu.Lock()
	n := len(d.conns)
	d.conns = append(d.conns, c)
	d.times = append(d.times, time.Now())
	c.autoPong = d.autoPong
	plan := d.plan(n)
	d.mu.Unlock()

	switch plan {
	case planOpen:
		c.open()
	case planRefuse:
		c.refuse()
	}
	d.dialed <- c
	return c
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) dialTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.times...)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no dial happened")
		return nil
	}
}

type fakeConn struct {
	h         Handler
	url       string
	protocols []string
	events    chan func()
	autoPong  Message

	mu          sync.Mutex
	sent        []Message
	sendErr     error
	echoClose   bool
	closed      bool
	closeCalls  int
	closeCode   CloseCode
	closeReason string
	finished    bool
}

func (c *fakeConn) post(fn func()) {
	c.events <- fn
}

func (c *fakeConn) open() {
	c.post(c.h.OnOpen)
}

func (c *fakeConn) refuse() {
	c.post(func() {
		c.h.OnError(errRefused)
		c.finish(CloseEvent{Code: CloseAbnormalClosure})
	})
}

func (c *fakeConn) receive(msg Message) {
	c.post(func() { c.h.OnMessage(msg) })
}

// drop simulates the peer or the network ending the connection.
func (c *fakeConn) drop(code CloseCode) {
	c.post(func() {
		c.finish(CloseEvent{Code: code})
	})
}

func (c *fakeConn) finish(ev CloseEvent) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.mu.Unlock()
	c.h.OnClose(ev)
}

func (c *fakeConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return ErrClosing
	}
	c.sent = append(c.sent, msg)
	if c.autoPong.Data != nil && msg.Equal(c.autoPong) {
		c.post(func() { c.h.OnMessage(msg) })
	}
	return nil
}

func (c *fakeConn) Close(code CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return nil
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	if c.echoClose {
		c.post(func() {
			c.finish(CloseEvent{Code: code, Reason: reason, WasClean: true})
		})
	}
	return nil
}

func (c *fakeConn) Subprotocol() string {
	if len(c.protocols) == 0 {
		return ""
	}
	return c.protocols[0]
}

func (c *fakeConn) setSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

func (c *fakeConn) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, m := range c.sent {
		out = append(out, string(m.Data))
	}
	return out
}

func (c *fakeConn) closeInfo() (calls int, code CloseCode, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls, c.closeCode, c.closeReason
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	waitFor(t, "status "+want, func() bool {
		return s.Status().Value() == want
	})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
