// Package push implements the long-lived channel over which the chat server
// streams events to an authenticated client.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/omochice/hybrid-chat/internal/transport"
	"github.com/omochice/hybrid-chat/internal/transport/tcp"
	"github.com/omochice/hybrid-chat/internal/trust"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// ErrClosed is returned by NextEvent once the stream has ended, either
// because the server closed it or because Close was called.
var ErrClosed = errors.New("push channel closed")

// Channel is one open push connection bound to an identity.
type Channel struct {
	conn     transport.Conn
	codec    protocol.Codec
	identity string
	logger   *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

type options struct {
	dialer transport.Dialer
	codec  protocol.Codec
	logger *zap.Logger
}

// Option configures Open.
type Option func(*options)

// WithDialer selects the transport. The default is a TLS line stream.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithCodec selects the frame codec. The default is protocol.TextCodec.
func WithCodec(c protocol.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open connects to host:port, verifies the server against tc and sends
// identity as the first frame so the server can bind the connection to an
// already authenticated user.
func Open(ctx context.Context, host string, port int, tc *trust.Context, identity string, opts ...Option) (*Channel, error) {
	o := options{
		dialer: tcp.Dialer{},
		codec:  protocol.TextCodec{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := o.dialer.Dial(ctx, addr, tc.ClientConfig(host))
	if err != nil {
		return nil, fmt.Errorf("failed to open push channel: %w", err)
	}

	if err := conn.Write(ctx, []byte(identity)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to identify on push channel: %w", err)
	}

	o.logger.Debug("push channel open", zap.String("addr", conn.RemoteAddr()), zap.String("user", identity))

	return &Channel{
		conn:     conn,
		codec:    o.codec,
		identity: identity,
		logger:   o.logger,
		closed:   make(chan struct{}),
	}, nil
}

// NextEvent blocks until the next event arrives. Empty frames are skipped
// and frames that fail to decode are logged and skipped.
// It returns ErrClosed on end of stream or after Close; any other error is a
// transport failure and also ends the channel.
func (c *Channel) NextEvent(ctx context.Context) (protocol.Event, error) {
	for {
		data, err := c.conn.Read(ctx)
		if err != nil {
			select {
			case <-c.closed:
				return protocol.Event{}, ErrClosed
			default:
			}
			if errors.Is(err, io.EOF) {
				return protocol.Event{}, ErrClosed
			}
			return protocol.Event{}, fmt.Errorf("push channel read: %w", err)
		}

		if len(data) == 0 {
			continue
		}

		ev, err := c.codec.Decode(data)
		if err != nil {
			c.logger.Warn("failed to decode push frame", zap.Error(err))
			continue
		}
		return ev, nil
	}
}

// Close closes the channel. It is idempotent, safe to call from any
// goroutine, and makes a pending NextEvent return ErrClosed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Done is closed once Close has been called.
func (c *Channel) Done() <-chan struct{} {
	return c.closed
}

// Identity returns the identity the channel was opened with.
func (c *Channel) Identity() string {
	return c.identity
}
