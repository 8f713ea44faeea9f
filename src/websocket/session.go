package websocket

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hendrywilliam/siren/src/eventloop"
	"github.com/hendrywilliam/siren/src/observable"
	"github.com/hendrywilliam/siren/src/timer"
)

// Session is one logical connection to a URL that survives reconnects.
//
// State transitions happen under mu, from transport and timer goroutines as
// well as from callers. Hooks and observable updates are posted to a serial
// dispatcher in transition order and never run with mu held, so they may call
// back into the session.
type Session struct {
	mu        sync.Mutex
	id        string
	url       string
	protocols []string
	opts      Options
	ctx       context.Context
	log       *slog.Logger
	dispatch  *eventloop.Serial
	rng       *rand.Rand

	status           Status
	conn             Transport
	gen              uint64
	attemptID        string
	outbox           *outbox
	retries          int
	explicitlyClosed bool

	// Unregisters the AutoClose teardown from the owner scope and ctx.
	ownerMu sync.Mutex
	release func()

	heartbeat *timer.Interval
	pong      *timer.Deadline
	reconnect *timer.Deadline

	data      *observable.Cell[*Message]
	statusObs *observable.Cell[Status]
	transport *observable.Cell[Transport]
}

// New creates a session for url. ctx is the host lifetime: with AutoClose the
// session closes once ctx is done.
func New(ctx context.Context, url string, opts Options) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.withDefaults()
	id := uuid.NewString()
	s := &Session{
		id:        id,
		url:       url,
		protocols: opts.Protocols,
		opts:      opts,
		ctx:       ctx,
		log:       opts.Logger.With("session_id", id, "url", url),
		dispatch:  eventloop.NewSerial(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		status:    StatusClosed,
		outbox:    newOutbox(),
		data:      observable.NewWithEquality[*Message](nil, nil),
		statusObs: observable.NewWithEquality(StatusClosed, func(a, b Status) bool { return a == b }),
		transport: observable.NewWithEquality[Transport](nil, func(a, b Transport) bool { return a == b }),
	}
	s.reconnect = timer.NewDeadline(&s.mu)
	if hb := opts.Heartbeat; hb != nil {
		s.heartbeat = timer.NewInterval(&s.mu, hb.Interval, s.heartbeatTick)
		s.pong = timer.NewDeadline(&s.mu)
	}

	if opts.Immediate {
		s.mu.Lock()
		s.connect()
		s.mu.Unlock()
	}

	s.bindOwner()
	return s
}

// bindOwner registers the AutoClose teardown unless it is registered already.
// It must be called without mu held: a disposed scope runs the teardown
// immediately.
func (s *Session) bindOwner() {
	if !s.opts.AutoClose {
		return
	}
	s.ownerMu.Lock()
	bound := s.release != nil
	s.ownerMu.Unlock()
	if bound {
		return
	}

	teardown := func() {
		s.log.Debug("owner torn down, closing session")
		s.CloseNormal()
	}
	unregister := func() {}
	if s.opts.Scope != nil {
		unregister = s.opts.Scope.OnDispose(teardown)
	}
	stop := context.AfterFunc(s.ctx, teardown)

	s.ownerMu.Lock()
	defer s.ownerMu.Unlock()
	if s.release != nil {
		unregister()
		stop()
		return
	}
	s.release = func() {
		unregister()
		stop()
	}
}

func (s *Session) releaseOwner() {
	s.ownerMu.Lock()
	release := s.release
	s.release = nil
	s.ownerMu.Unlock()
	if release != nil {
		release()
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) URL() string {
	return s.url
}

// Data holds the last received message, nil until one arrives.
func (s *Session) Data() observable.Readable[*Message] {
	return s.data.ReadOnly()
}

func (s *Session) Status() observable.Readable[Status] {
	return s.statusObs.ReadOnly()
}

// Transport holds the live transport, nil while none exists.
func (s *Session) Transport() observable.Readable[Transport] {
	return s.transport.ReadOnly()
}

// RetryCount is the number of reconnect attempts since the last successful open.
func (s *Session) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retries
}

// Pending is the number of buffered messages waiting for the session to open.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outbox.len()
}

// ResetBuffer drops every buffered message.
func (s *Session) ResetBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox.reset()
}

// Send transmits msg if the session is open, after any buffered messages.
// Otherwise msg is buffered for the next open when buffer is true, or dropped.
// It reports whether msg was transmitted.
func (s *Session) Send(msg Message, buffer bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(msg, buffer)
}

func (s *Session) SendText(text string) bool {
	return s.Send(Text(text), true)
}

// Open closes the current connection, if any, and starts a new one. The retry
// count is reset; buffered messages are kept.
func (s *Session) Open() {
	s.bindOwner()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusClosed {
		s.close(CloseNormalClosure, "")
	}
	s.retries = 0
	s.connect()
}

// Close requests a graceful close. The session will not reconnect on its own
// afterwards. Status becomes CLOSED once the transport confirms. Without a
// transport, Close still cancels a pending reconnect. The AutoClose teardown
// is unregistered until the next Open.
func (s *Session) Close(code CloseCode, reason string) {
	s.mu.Lock()
	s.close(code, reason)
	s.mu.Unlock()
	s.releaseOwner()
}

func (s *Session) CloseNormal() {
	s.Close(CloseNormalClosure, "")
}

func (s *Session) post(fn func()) {
	s.dispatch.Post(fn)
}

func (s *Session) connect() {
	s.reconnect.Cancel()
	s.gen++
	s.attemptID = uuid.NewString()
	s.log.Info("connecting", "attempt_id", s.attemptID)

	conn := s.opts.Dialer.Dial(s.url, s.protocols, &binding{s: s, gen: s.gen})
	s.conn = conn
	s.status = StatusConnecting
	s.explicitlyClosed = false
	s.post(func() {
		s.statusObs.Set(StatusConnecting)
		s.transport.Set(conn)
	})
}

func (s *Session) close(code CloseCode, reason string) {
	s.reconnect.Cancel()
	if s.conn == nil {
		// Invalidates a reconnect decision that is still on the dispatcher.
		s.gen++
		return
	}
	s.explicitlyClosed = true
	s.stopHeartbeat()
	s.log.Info("closing", "attempt_id", s.attemptID, "code", code, "reason", reason)
	if err := s.conn.Close(code, reason); err != nil {
		s.reportError(err)
	}
}

func (s *Session) send(msg Message, buffer bool) bool {
	if s.conn == nil || s.status != StatusOpen {
		if buffer {
			s.outbox.push(msg)
		}
		return false
	}
	if !s.flush() {
		if buffer {
			s.outbox.push(msg)
		}
		return false
	}
	if err := s.conn.Send(msg); err != nil {
		s.reportError(err)
		if buffer {
			s.outbox.push(msg)
		}
		return false
	}
	return true
}

// flush hands buffered messages to the transport in order. A message leaves
// the buffer once the transport accepts it.
func (s *Session) flush() bool {
	for s.outbox.len() > 0 {
		if err := s.conn.Send(s.outbox.peek()); err != nil {
			s.reportError(err)
			return false
		}
		s.outbox.pop()
	}
	return true
}

func (s *Session) reportError(err error) {
	s.log.Error("session error", "attempt_id", s.attemptID, "error", err)
	if fn := s.opts.OnError; fn != nil {
		s.post(func() { fn(s, err) })
	}
}

func (s *Session) handleOpen() {
	s.status = StatusOpen
	s.retries = 0
	s.log.Info("connected", "attempt_id", s.attemptID, "subprotocol", s.conn.Subprotocol())
	s.post(func() { s.statusObs.Set(StatusOpen) })
	if fn := s.opts.OnConnected; fn != nil {
		s.post(func() { fn(s) })
	}
	if s.heartbeat != nil {
		s.heartbeat.Resume()
	}
	s.flush()
}

func (s *Session) handleClose(ev CloseEvent) {
	s.status = StatusClosed
	s.conn = nil
	s.stopHeartbeat()
	s.log.Info("disconnected",
		"attempt_id", s.attemptID,
		"code", ev.Code,
		"reason", ev.Reason,
		"explicit", s.explicitlyClosed,
	)
	s.post(func() {
		s.statusObs.Set(StatusClosed)
		s.transport.Set(nil)
	})
	if fn := s.opts.OnDisconnected; fn != nil {
		s.post(func() { fn(s, ev) })
	}
	if !s.explicitlyClosed && s.opts.AutoReconnect != nil {
		gen := s.gen
		s.post(func() { s.scheduleReconnect(gen) })
	}
}

func (s *Session) handleMessage(msg Message) {
	if s.pong != nil {
		s.pong.Cancel()
	}
	if hb := s.opts.Heartbeat; hb != nil && msg.Equal(hb.Message) {
		return
	}
	s.post(func() {
		m := msg
		s.data.Set(&m)
		if fn := s.opts.OnMessage; fn != nil {
			fn(s, msg)
		}
	})
}

// scheduleReconnect runs on the dispatcher so RetryIf and OnFailed are called
// without mu held. gen is the attempt that closed; a newer attempt or an
// explicit close in the meantime cancels the decision.
func (s *Session) scheduleReconnect(gen uint64) {
	rc := s.opts.AutoReconnect

	s.mu.Lock()
	if s.gen != gen || s.conn != nil || s.explicitlyClosed {
		s.mu.Unlock()
		return
	}
	attempt := s.retries
	s.retries++
	s.mu.Unlock()

	var retry bool
	if rc.RetryIf != nil {
		retry = rc.RetryIf()
	} else {
		retry = rc.Retries < 0 || attempt < rc.Retries
	}
	if !retry {
		s.log.Warn("giving up reconnecting", "attempts", attempt)
		if rc.OnFailed != nil {
			rc.OnFailed()
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.conn != nil || s.explicitlyClosed {
		return
	}
	delay := reconnectDelay(rc, attempt+1, s.rng)
	s.log.Info("reconnecting", "attempt", attempt+1, "delay", delay)
	s.reconnect.Arm(delay, s.connect)
}

func (s *Session) heartbeatTick() {
	if s.conn == nil || s.status != StatusOpen {
		return
	}
	if s.pong.Armed() {
		return
	}
	hb := s.opts.Heartbeat
	s.send(hb.Message, false)
	s.pong.Arm(hb.PongTimeout, s.pongTimeout)
}

// pongTimeout closes a silent connection without marking it explicit, so the
// reconnect policy applies as for a network failure.
func (s *Session) pongTimeout() {
	if s.conn == nil {
		return
	}
	s.log.Warn("no heartbeat response", "attempt_id", s.attemptID, "timeout", s.opts.Heartbeat.PongTimeout)
	s.stopHeartbeat()
	if err := s.conn.Close(CloseNormalClosure, ""); err != nil {
		s.reportError(err)
	}
}

func (s *Session) stopHeartbeat() {
	if s.heartbeat == nil {
		return
	}
	s.heartbeat.Pause()
	s.pong.Cancel()
}

// binding routes one transport's events into the session until a newer
// connection attempt supersedes it.
type binding struct {
	s   *Session
	gen uint64
}

func (b *binding) current() bool {
	return b.s.gen == b.gen
}

func (b *binding) OnOpen() {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if !b.current() {
		return
	}
	b.s.handleOpen()
}

func (b *binding) OnClose(ev CloseEvent) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if !b.current() {
		return
	}
	b.s.handleClose(ev)
}

func (b *binding) OnError(err error) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if !b.current() {
		return
	}
	b.s.reportError(err)
}

func (b *binding) OnMessage(msg Message) {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if !b.current() {
		return
	}
	b.s.handleMessage(msg)
}
