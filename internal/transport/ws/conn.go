// Package ws provides the WebSocket-over-TLS transport for push channels.
package ws

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// closeTimeout bounds the close handshake write.
const closeTimeout = time.Second

// Conn adapts a client-side WebSocket net.Conn to transport.Conn.
// Each frame is one WebSocket message.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	op     ws.OpCode
	wmu    sync.Mutex
}

// NewConn wraps a connection whose handshake has completed. br holds any
// bytes the handshake read past the response and may be nil.
// Writes use binary messages when binary is true, text messages otherwise.
func NewConn(conn net.Conn, br *bufio.Reader, binary bool) *Conn {
	c := &Conn{conn: conn, reader: conn, op: ws.OpText}
	if br != nil {
		c.reader = io.MultiReader(br, conn)
	}
	if binary {
		c.op = ws.OpBinary
	}
	return c
}

// Read implements transport.Conn.
// Reads the next data message; control frames are handled transparently.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	data, _, err := wsutil.ReadServerData(readWriter{c.reader, lockedWriter{c}})
	if err != nil {
		if _, ok := err.(wsutil.ClosedError); ok {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteClientMessage(c.conn, c.op, data)
}

// Close implements transport.Conn.
// Sends a close frame on a best-effort basis before closing the socket.
func (c *Conn) Close() error {
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

type readWriter struct {
	io.Reader
	io.Writer
}

// lockedWriter serialises control frame replies with regular writes.
type lockedWriter struct{ c *Conn }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
}
