package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pricefeed/pkg/exception"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultCloseTimeout     = time.Second
	DefaultWriteTimeout     = 10 * time.Second
)

type dialer struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	closeTO time.Duration
}

// NewDialer returns a Dialer for the given ws:// or wss:// URL.
func NewDialer(url string, header http.Header) Dialer {
	return &dialer{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		closeTO: DefaultCloseTimeout,
	}
}

func (d *dialer) Dial(ctx context.Context) (Conn, error) {
	c, resp, err := d.dialer.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrap(err, "dial").With("status", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial")
	}
	return &wsConn{conn: c, closeTimeout: d.closeTO}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	closeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func (c *wsConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	for {
		typ, payload, err := c.conn.ReadMessage()
		if err != nil {
			return 0, nil, err
		}
		switch typ {
		case websocket.TextMessage:
			return MessageText, payload, nil
		case websocket.BinaryMessage:
			return MessageBinary, payload, nil
		}
	}
}

func (c *wsConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	if msgType != MessageText && msgType != MessageBinary {
		return errors.Wrapf(exception.ErrWebSocketProtocol, "write message type %d", msgType)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(DefaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msgType), payload)
}

// Close sends a close frame and releases the socket within the close timeout.
// It does not wait for a pending Write, which fails once the socket closes.
func (c *wsConn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.closeTimeout))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// IsClosed reports whether err is a normal or going-away close from the peer.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
