package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Used when Send is called without a deadline.
	defaultWriteWait = 5 * time.Second

	// Bound on the close handshake frame.
	closeWait = 1 * time.Second
)

// Conn is the transport endpoint a Peer exclusively owns. Other components
// only borrow it for the duration of one Send.
type Conn interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// WSConn adapts a gorilla websocket to Conn. Writes are serialized; Close
// may be called concurrently with Send and more than once.
type WSConn struct {
	ws *websocket.Conn

	sendMu    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWSConn wraps an upgraded connection.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{
		ws:     ws,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Send writes one text frame. The context deadline bounds both waiting for
// the writer slot and the write itself.
func (c *WSConn) Send(ctx context.Context, data []byte) error {
	select {
	case c.sendMu <- struct{}{}:
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrSendTimeout, ctx.Err())
	}
	defer func() { <-c.sendMu }()

	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrSendTimeout, err)
		}
		return err
	}
	return nil
}

// Close sends a normal closure frame and closes the socket.
func (c *WSConn) Close() error {
	return c.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode is Close with an explicit close code and reason.
func (c *WSConn) CloseWithCode(code int, reason string) error {
	err := ErrConnClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWait))
		err = c.ws.Close()
	})
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
