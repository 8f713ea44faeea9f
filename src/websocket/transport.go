package websocket

// Handler receives the events of one transport instance.
//
// A transport delivers events sequentially from a single goroutine, starting
// with either OnOpen or OnClose, and delivers nothing after OnClose. Events are
// never delivered from inside Dial, Send or Close.
type Handler interface {
	OnOpen()
	OnClose(ev CloseEvent)
	OnError(err error)
	OnMessage(msg Message)
}

// Transport is the live socket behind one connection attempt.
//
// Send and Close must not block on the network. Send reports whether msg was
// accepted for writing; later write failures arrive as Handler.OnError
// followed by Handler.OnClose.
type Transport interface {
	Send(msg Message) error
	// Close starts the closing handshake. Completion is reported through
	// Handler.OnClose.
	Close(code CloseCode, reason string) error
	Subprotocol() string
}

// Dialer creates transports. Dial returns immediately; the outcome of the
// connection attempt is reported to h.
type Dialer interface {
	Dial(url string, protocols []string, h Handler) Transport
}
