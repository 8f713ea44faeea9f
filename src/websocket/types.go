package websocket

import (
	"bytes"

	gorilla "github.com/gorilla/websocket"
)

type Status = string

const (
	StatusConnecting Status = "CONNECTING"
	StatusOpen       Status = "OPEN"
	StatusClosed     Status = "CLOSED"
)

type MessageType = int

const (
	TextMessage   MessageType = gorilla.TextMessage
	BinaryMessage MessageType = gorilla.BinaryMessage
)

// https://www.rfc-editor.org/rfc/rfc6455#section-7.4.1
type CloseCode = int

const (
	CloseNormalClosure   CloseCode = gorilla.CloseNormalClosure
	CloseGoingAway       CloseCode = gorilla.CloseGoingAway
	CloseAbnormalClosure CloseCode = gorilla.CloseAbnormalClosure
)

const DefaultPingMessage = "ping"

// Message is one WebSocket data frame.
type Message struct {
	Type MessageType
	Data []byte
}

func Text(s string) Message {
	return Message{Type: TextMessage, Data: []byte(s)}
}

func Binary(b []byte) Message {
	return Message{Type: BinaryMessage, Data: b}
}

func (m Message) String() string {
	return string(m.Data)
}

// Equal reports whether m and o have the same frame type and payload.
func (m Message) Equal(o Message) bool {
	return m.Type == o.Type && bytes.Equal(m.Data, o.Data)
}

// CloseEvent describes how a transport ended.
type CloseEvent struct {
	Code     CloseCode
	Reason   string
	WasClean bool
}
