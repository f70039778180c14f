package ws

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/hybrid-chat/internal/transport"
)

// DefaultPath is the push endpoint path used when Dialer.Path is empty.
const DefaultPath = "/push"

// Dialer opens wss:// connections that carry one frame per message.
type Dialer struct {
	// Path is the request path of the push endpoint.
	Path string

	// Binary selects binary messages for outgoing frames.
	Binary bool

	// Timeout bounds the connect, TLS and WebSocket handshakes.
	Timeout time.Duration
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, addr string, cfg *tls.Config) (transport.Conn, error) {
	path := d.Path
	if path == "" {
		path = DefaultPath
	}
	u := url.URL{Scheme: "wss", Host: addr, Path: path}

	wd := ws.Dialer{
		TLSConfig: cfg,
		Timeout:   d.Timeout,
	}
	conn, br, _, err := wd.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", u.String(), err)
	}
	return NewConn(conn, br, d.Binary), nil
}

var _ transport.Dialer = Dialer{}
