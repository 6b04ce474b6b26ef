package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/harunnryd/clinirelay/pkg/hub"
)

// Conn adapts a gorilla connection to hub.Conn. Writes are serialized;
// any write error leaves the connection unusable and is reported as
// hub.ErrConnClosed. Close always releases the socket, even after a
// failed write.
type Conn struct {
	id           string
	ws           *gws.Conn
	writeTimeout time.Duration

	writeMu     sync.Mutex
	writeFailed atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

func newConn(ws *gws.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{id: uuid.NewString(), ws: ws, writeTimeout: writeTimeout}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(ctx context.Context, msg []byte) error {
	if c.closed.Load() || c.writeFailed.Load() {
		return hub.ErrConnClosed
	}
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(gws.TextMessage, msg); err != nil {
		c.writeFailed.Store(true)
		return fmt.Errorf("%w: %v", hub.ErrConnClosed, err)
	}
	return nil
}

// Ping sends a control ping; gorilla allows it concurrently with Send.
func (c *Conn) Ping(timeout time.Duration) error {
	if c.closed.Load() {
		return hub.ErrConnClosed
	}
	return c.ws.WriteControl(gws.PingMessage, nil, time.Now().Add(timeout))
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if !c.writeFailed.Load() {
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.ws.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
			c.writeMu.Unlock()
		}
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
