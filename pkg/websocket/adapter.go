package websocket

import "context"

// Writer sends one outbound frame.
type Writer interface {
	Write(ctx context.Context, msgType MessageType, payload []byte) error
}

// Conn is a minimal interface for a WebSocket connection.
// Read blocks until a data frame arrives or the connection fails.
type Conn interface {
	Writer
	Read(ctx context.Context) (MessageType, []byte, error)
	Close(code CloseCode, reason string) error
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
