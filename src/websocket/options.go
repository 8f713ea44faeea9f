package websocket

import (
	"io"
	"log/slog"
	"time"

	"github.com/hendrywilliam/siren/src/lifecycle"
)

type HeartbeatOptions struct {
	// Message sent every Interval. A received message equal to it is treated
	// as the pong and not delivered. Defaults to the text "ping".
	Message Message
	// Defaults to one second.
	Interval time.Duration
	// Time allowed for any inbound message after a heartbeat before the
	// connection is considered dead. Defaults to one second.
	PongTimeout time.Duration
}

// BackoffOptions stretches the reconnect delay over consecutive attempts.
// The zero value keeps the delay fixed.
type BackoffOptions struct {
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool
}

type ReconnectOptions struct {
	// Maximum number of reconnect attempts since the last successful open.
	// Negative means unlimited. Zero gives up on the first close.
	Retries int
	// RetryIf, when set, replaces Retries: it is asked at every eligible
	// close whether to reconnect.
	RetryIf func() bool
	Delay   time.Duration
	Backoff BackoffOptions
	// OnFailed is called once the policy stops reconnecting.
	OnFailed func()
}

type Options struct {
	OnConnected    func(s *Session)
	OnDisconnected func(s *Session, ev CloseEvent)
	OnError        func(s *Session, err error)
	OnMessage      func(s *Session, msg Message)

	// nil disables heartbeats.
	Heartbeat *HeartbeatOptions
	// nil disables reconnecting after a close the session did not request.
	AutoReconnect *ReconnectOptions

	// Connect from New.
	Immediate bool
	// Close when Scope is disposed or the host context is done.
	AutoClose bool
	Protocols []string

	Dialer Dialer
	Scope  lifecycle.Owner
	Logger *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		Immediate: true,
		AutoClose: true,
	}
}

func DefaultHeartbeat() *HeartbeatOptions {
	return &HeartbeatOptions{
		Message:     Text(DefaultPingMessage),
		Interval:    time.Second,
		PongTimeout: time.Second,
	}
}

func DefaultReconnect() *ReconnectOptions {
	return &ReconnectOptions{
		Retries: -1,
		Delay:   time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.Heartbeat != nil {
		hb := *o.Heartbeat
		if hb.Message.Data == nil {
			hb.Message = Text(DefaultPingMessage)
		}
		if hb.Message.Type == 0 {
			hb.Message.Type = TextMessage
		}
		if hb.Interval <= 0 {
			hb.Interval = time.Second
		}
		if hb.PongTimeout <= 0 {
			hb.PongTimeout = time.Second
		}
		o.Heartbeat = &hb
	}
	if o.AutoReconnect != nil {
		rc := *o.AutoReconnect
		if rc.Delay < 0 {
			rc.Delay = 0
		}
		if rc.Backoff.Multiplier < 1.0 {
			rc.Backoff.Multiplier = 1.0
		}
		o.AutoReconnect = &rc
	}
	o.Protocols = append([]string(nil), o.Protocols...)
	if o.Dialer == nil {
		o.Dialer = NewDialer()
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
