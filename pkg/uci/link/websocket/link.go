package websocket

import (
	"context"
	"net"

	"golang.org/x/net/websocket"
)

// Link is a byte stream over websocket binary messages.
type Link struct {
	conn    *websocket.Conn
	pending []byte
}

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *Link {
	conn.PayloadType = websocket.BinaryFrame
	return &Link{conn: conn}
}

// Dial connects to a websocket server, e.g. ws://host:8080/uci.
func Dial(ctx context.Context, wsURL string) (*Link, error) {
	config, err := websocket.NewConfig(wsURL, "http://localhost/")
	if err != nil {
		return nil, err
	}
	config.Dialer = &net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		config.Dialer.Deadline = deadline
	}
	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Read implements io.Reader. Payloads of messages are concatenated.
func (l *Link) Read(p []byte) (int, error) {
	for len(l.pending) == 0 {
		var msg []byte
		if err := websocket.Message.Receive(l.conn, &msg); err != nil {
			return 0, err
		}
		l.pending = msg
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write implements io.Writer, each write is sent as one message.
func (l *Link) Write(p []byte) (int, error) {
	if err := websocket.Message.Send(l.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (l *Link) Close() error {
	return l.conn.Close()
}

// Handler serves websocket connections as Links, e.g. a device bridge
// exposing a local UART to remote hosts.
func Handler(serve func(*Link)) websocket.Handler {
	return func(conn *websocket.Conn) {
		serve(New(conn))
	}
}
