// Package transport abstracts the encrypted stream a push channel rides on.
package transport

import (
	"context"
	"crypto/tls"
)

// Conn is a framed, bidirectional connection.
// Implementations isolate framing details from the push channel.
type Conn interface {
	// Read reads a single frame without its delimiter.
	// Returns io.EOF when the peer closed the connection.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. It unblocks a pending Read.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens a Conn to addr, verifying the server with cfg.
type Dialer interface {
	Dial(ctx context.Context, addr string, cfg *tls.Config) (Conn, error)
}
