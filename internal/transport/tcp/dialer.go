package tcp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/omochice/hybrid-chat/internal/transport"
)

// Dialer opens TLS connections that carry newline-delimited frames.
type Dialer struct {
	// Timeout bounds the TCP connect and TLS handshake. Zero means no limit
	// beyond the context.
	Timeout time.Duration
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, addr string, cfg *tls.Config) (transport.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	td := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    cfg,
	}
	conn, err := td.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return NewConn(conn), nil
}

var _ transport.Dialer = Dialer{}
