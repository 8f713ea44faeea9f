package websocket

import "errors"

var (
	ErrNotConnected = errors.New("transport is not connected")
	ErrClosing      = errors.New("transport is closing")
	ErrDialFailed   = errors.New("failed to connect")
)
