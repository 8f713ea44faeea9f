package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/eapache/queue"
	gorilla "github.com/gorilla/websocket"
)

// GorillaDialer creates transports backed by gorilla/websocket.
type GorillaDialer struct {
	Dialer *gorilla.Dialer
	Header http.Header
	// Bound on every write, including the close frame.
	WriteTimeout time.Duration
	// How long to wait for the peer to answer a close frame before the
	// socket is dropped.
	CloseGrace time.Duration
}

func NewDialer() *GorillaDialer {
	return &GorillaDialer{
		Dialer:       gorilla.DefaultDialer,
		WriteTimeout: 10 * time.Second,
		CloseGrace:   time.Second,
	}
}

func (d *GorillaDialer) Dial(url string, protocols []string, h Handler) Transport {
	ctx, cancel := context.WithCancel(context.Background())
	c := &gorillaConn{
		d:       d,
		h:       h,
		cancel:  cancel,
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
	}
	go c.run(ctx, url, protocols)
	return c
}

// frame is one queued write. A close frame ends the write pump.
type frame struct {
	msg    Message
	close  bool
	code   CloseCode
	reason string
}

// gorillaConn never writes on the caller's goroutine. Send and Close queue
// frames for writePump; a failed write drops the socket and the read loop
// reports it.
type gorillaConn struct {
	d      *GorillaDialer
	h      Handler
	cancel context.CancelFunc

	mu       sync.Mutex
	ws       *gorilla.Conn
	closing  bool
	grace    *time.Timer
	pending  *queue.Queue
	writeErr error

	wake chan struct{}
}

func (c *gorillaConn) run(ctx context.Context, url string, protocols []string) {
	defer c.cancel()

	dialer := gorilla.DefaultDialer
	if c.d.Dialer != nil {
		dialer = c.d.Dialer
	}
	dialerCopy := *dialer
	dialerCopy.Subprotocols = protocols

	ws, _, err := dialerCopy.DialContext(ctx, url, c.d.Header)
	if err != nil {
		if !c.isClosing() {
			c.h.OnError(fmt.Errorf("%w: %w", ErrDialFailed, err))
		}
		c.h.OnClose(CloseEvent{Code: CloseAbnormalClosure})
		return
	}

	c.mu.Lock()
	c.ws = ws
	closing := c.closing
	c.mu.Unlock()
	if closing {
		// Close was requested while dialing.
		ws.Close()
		c.h.OnClose(CloseEvent{Code: CloseAbnormalClosure})
		return
	}

	done := make(chan struct{})
	defer close(done)
	go c.writePump(ws, done)

	c.h.OnOpen()
	for {
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			c.stopGrace()
			ws.Close()
			var ce *gorilla.CloseError
			if errors.As(err, &ce) {
				c.h.OnClose(CloseEvent{Code: ce.Code, Reason: ce.Text, WasClean: true})
				return
			}
			c.mu.Lock()
			writeErr, closing := c.writeErr, c.closing
			c.mu.Unlock()
			switch {
			case writeErr != nil:
				c.h.OnError(writeErr)
			case !closing:
				c.h.OnError(err)
			}
			c.h.OnClose(CloseEvent{Code: CloseAbnormalClosure})
			return
		}
		switch messageType {
		case gorilla.TextMessage, gorilla.BinaryMessage:
			c.h.OnMessage(Message{Type: messageType, Data: message})
		}
	}
}

func (c *gorillaConn) writePump(ws *gorilla.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			if c.pending.Length() == 0 {
				c.mu.Unlock()
				break
			}
			f := c.pending.Remove().(frame)
			c.mu.Unlock()

			if err := c.write(ws, f); err != nil {
				c.mu.Lock()
				if c.writeErr == nil && !c.closing {
					c.writeErr = err
				}
				c.mu.Unlock()
				ws.Close()
				return
			}
			if f.close {
				return
			}
		}
	}
}

func (c *gorillaConn) write(ws *gorilla.Conn, f frame) error {
	var deadline time.Time
	if c.d.WriteTimeout > 0 {
		deadline = time.Now().Add(c.d.WriteTimeout)
	}
	if f.close {
		return ws.WriteControl(gorilla.CloseMessage, gorilla.FormatCloseMessage(f.code, f.reason), deadline)
	}
	ws.SetWriteDeadline(deadline)
	return ws.WriteMessage(f.msg.Type, f.msg.Data)
}

// enqueue must be called with mu held.
func (c *gorillaConn) enqueue(f frame) {
	c.pending.Add(f)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *gorillaConn) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *gorillaConn) stopGrace() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

// Send queues msg and returns without touching the network. msg.Data must not
// be modified afterwards.
func (c *gorillaConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closing:
		return ErrClosing
	case c.ws == nil:
		return ErrNotConnected
	case c.writeErr != nil:
		return c.writeErr
	}
	c.enqueue(frame{msg: msg})
	return nil
}

// Close queues the close frame behind pending writes and arms the grace timer
// that drops the socket if the handshake does not finish. It is a no-op when
// the transport is already closing.
func (c *gorillaConn) Close(code CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return nil
	}
	c.closing = true
	ws := c.ws
	if ws == nil {
		c.cancel()
		return nil
	}
	c.enqueue(frame{close: true, code: code, reason: reason})
	c.grace = time.AfterFunc(c.d.CloseGrace, func() {
		ws.Close()
	})
	return nil
}

func (c *gorillaConn) Subprotocol() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ""
	}
	return c.ws.Subprotocol()
}
