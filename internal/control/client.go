// Package control implements the stateless request/response channel used
// for login, registration, sending chat text and logout.
//
// Every call is a single HTTPS POST with a fully buffered form body,
// verified against the shared trust context. The client never retries.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/hybrid-chat/internal/trust"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Default timeouts of a control exchange.
const (
	DefaultConnectTimeout  = 5 * time.Second
	DefaultResponseTimeout = 10 * time.Second
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 64 << 10

// Form field names.
const (
	FieldUser     = "user"
	FieldPassword = "password"
	FieldContent  = "content"
)

// Endpoints holds the request paths of the control operations.
type Endpoints struct {
	Login      string
	Register   string
	Message    string
	Disconnect string
}

// DefaultEndpoints returns the standard endpoint paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:      "/login",
		Register:   "/register",
		Message:    "/message",
		Disconnect: "/disconnect",
	}
}

// TransportError reports an I/O failure of a control exchange, including
// timeouts, refused connections and failed handshakes.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("control %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) {
		return ne.Timeout()
	}
	return false
}

// Client performs control exchanges against one server.
type Client struct {
	baseURL   string
	endpoints Endpoints
	http      *http.Client
	logger    *zap.Logger
}

type options struct {
	connectTimeout  time.Duration
	responseTimeout time.Duration
	endpoints       Endpoints
	logger          *zap.Logger
}

// Option configures a Client.
type Option func(*options)

// WithTimeouts overrides the connect and response timeouts.
func WithTimeouts(connect, response time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = connect
		o.responseTimeout = response
	}
}

// WithEndpoints overrides the endpoint paths.
func WithEndpoints(e Endpoints) Option {
	return func(o *options) { o.endpoints = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a Client for https://host:port verifying the server with tc.
func New(host string, port int, tc *trust.Context, opts ...Option) *Client {
	o := options{
		connectTimeout:  DefaultConnectTimeout,
		responseTimeout: DefaultResponseTimeout,
		endpoints:       DefaultEndpoints(),
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: o.connectTimeout}).DialContext,
		TLSClientConfig:       tc.ClientConfig(host),
		TLSHandshakeTimeout:   o.connectTimeout,
		ResponseHeaderTimeout: o.responseTimeout,
		DisableKeepAlives:     true,
	}

	return &Client{
		baseURL:   "https://" + net.JoinHostPort(host, strconv.Itoa(port)),
		endpoints: o.endpoints,
		http: &http.Client{
			Transport: transport,
			Timeout:   o.connectTimeout + o.responseTimeout,
		},
		logger: o.logger,
	}
}

// Request posts form to endpoint and parses the reply. A non-2xx status
// with an empty body becomes an ERROR response carrying the status text.
func (c *Client) Request(ctx context.Context, endpoint string, form url.Values) (protocol.Response, error) {
	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(body))
	if err != nil {
		return protocol.Response{}, &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Close = true

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("control request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return protocol.Response{}, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return protocol.Response{}, &TransportError{Endpoint: endpoint, Err: err}
	}

	c.logger.Debug("control request done",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if len(strings.TrimSpace(string(raw))) == 0 && resp.StatusCode/100 != 2 {
		return protocol.ErrorResponse(resp.Status), nil
	}
	return protocol.ParseResponse(string(raw)), nil
}

// Login authenticates user. On success the response carries the push port
// and a welcome text.
func (c *Client) Login(ctx context.Context, user, password string) (protocol.Response, error) {
	return c.Request(ctx, c.endpoints.Login, url.Values{
		FieldUser:     {user},
		FieldPassword: {password},
	})
}

// Register creates an account. It never opens a push channel.
func (c *Client) Register(ctx context.Context, user, password string) (protocol.Response, error) {
	return c.Request(ctx, c.endpoints.Register, url.Values{
		FieldUser:     {user},
		FieldPassword: {password},
	})
}

// Send posts chat text on behalf of user.
func (c *Client) Send(ctx context.Context, user, content string) (protocol.Response, error) {
	return c.Request(ctx, c.endpoints.Message, url.Values{
		FieldUser:    {user},
		FieldContent: {content},
	})
}

// Disconnect tells the server that user is logging out.
func (c *Client) Disconnect(ctx context.Context, user string) (protocol.Response, error) {
	return c.Request(ctx, c.endpoints.Disconnect, url.Values{
		FieldUser: {user},
	})
}
