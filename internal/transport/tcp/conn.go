// Package tcp provides the newline-delimited TLS transport for push channels.
package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// MaxLineSize is the longest frame Read accepts, terminator included.
const MaxLineSize = 64 << 10

// Conn adapts a TLS net.Conn to transport.Conn.
// Each frame is one line terminated by '\n'.
type Conn struct {
	conn    net.Conn
	scanner *bufio.Scanner
	wmu     sync.Mutex
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	return &Conn{conn: conn, scanner: scanner}
}

// Read implements transport.Conn.
// Reads one line; a trailing "\r" is stripped. A final unterminated line is
// returned before io.EOF. A line longer than MaxLineSize fails with
// protocol.ErrMalformedFrame and ends the stream.
// Read must not be called concurrently.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if !c.scanner.Scan() {
		err := c.scanner.Err()
		switch {
		case err == nil:
			return nil, io.EOF
		case errors.Is(err, bufio.ErrTooLong):
			return nil, fmt.Errorf("%w: line exceeds %d bytes", protocol.ErrMalformedFrame, MaxLineSize)
		default:
			return nil, err
		}
	}
	return append([]byte(nil), c.scanner.Bytes()...), nil
}

// Write implements transport.Conn.
// The frame and its terminator go out in a single write.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(buf)
	return err
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
