// Package chattest provides an in-process chat server and certificate
// helpers for exercising the client against real TLS endpoints.
package chattest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omochice/hybrid-chat/internal/control"
	"github.com/omochice/hybrid-chat/internal/transport"
	"github.com/omochice/hybrid-chat/internal/transport/tcp"
	"github.com/omochice/hybrid-chat/internal/transport/ws"
	"github.com/omochice/hybrid-chat/internal/trust"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Host is the loopback address every listener binds to.
const Host = "127.0.0.1"

// identifyTimeout bounds how long a push connection may stay silent before
// sending its identity.
const identifyTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is a reference chat server: an HTTPS control endpoint plus a push
// listener speaking either TLS lines or WebSocket over TLS.
type Server struct {
	Authority *Authority

	control  *httptest.Server
	pushLn   net.Listener
	pushHTTP *http.Server
	hub      *Hub
	codec    protocol.Codec
	binary   bool
	logger   *zap.Logger

	mu        sync.Mutex
	users     map[string]string
	online    map[string]bool
	overrides map[string]http.HandlerFunc
	calls     map[string][]url.Values
	changed   chan struct{}

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type options struct {
	websocket bool
	binary    bool
	logger    *zap.Logger
}

// Option configures NewServer.
type Option func(*options)

// WithWebSocket serves push over WebSocket at ws.DefaultPath. When binary is
// true frames use protocol.BinaryCodec.
func WithWebSocket(binary bool) Option {
	return func(o *options) {
		o.websocket = true
		o.binary = binary
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewServer starts a server with a fresh Authority. Close must be called.
func NewServer(opts ...Option) (*Server, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ca, err := NewAuthority()
	if err != nil {
		return nil, err
	}
	cert, err := ca.Issue(Host, "localhost")
	if err != nil {
		return nil, err
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	s := &Server{
		Authority: ca,
		hub:       NewHub(),
		codec:     protocol.TextCodec{},
		binary:    o.binary,
		logger:    o.logger,
		users:     make(map[string]string),
		online:    make(map[string]bool),
		overrides: make(map[string]http.HandlerFunc),
		calls:     make(map[string][]url.Values),
		changed:   make(chan struct{}),
		quit:      make(chan struct{}),
	}
	if o.binary {
		s.codec = protocol.BinaryCodec{}
	}

	ln, err := tls.Listen("tcp", net.JoinHostPort(Host, "0"), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to start push listener: %w", err)
	}
	s.pushLn = ln

	if o.websocket {
		mux := http.NewServeMux()
		mux.HandleFunc(ws.DefaultPath, s.handleWebSocket)
		s.pushHTTP = &http.Server{Handler: mux}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.pushHTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Warn("push server error", zap.Error(err))
			}
		}()
	} else {
		s.wg.Add(1)
		go s.acceptPush()
	}

	s.control = httptest.NewUnstartedServer(s.router())
	s.control.TLS = tlsConfig
	s.control.StartTLS()

	return s, nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	defaults := control.DefaultEndpoints()
	r.Post(defaults.Login, s.endpoint(defaults.Login, s.handleLogin))
	r.Post(defaults.Register, s.endpoint(defaults.Register, s.handleRegister))
	r.Post(defaults.Message, s.endpoint(defaults.Message, s.handleMessage))
	r.Post(defaults.Disconnect, s.endpoint(defaults.Disconnect, s.handleDisconnect))
	return r
}

// endpoint records the request form and applies any override before
// falling through to h.
func (s *Server) endpoint(path string, h func(url.Values) protocol.Response) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "", http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.calls[path] = append(s.calls[path], r.PostForm)
		override := s.overrides[path]
		s.mu.Unlock()
		s.notify()

		if override != nil {
			override(w, r)
			return
		}
		fmt.Fprint(w, h(r.PostForm).String())
	}
}

func (s *Server) handleRegister(form url.Values) protocol.Response {
	user, password := form.Get(control.FieldUser), form.Get(control.FieldPassword)
	if user == "" || password == "" {
		return protocol.ErrorResponse("User and password are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user]; exists {
		return protocol.ErrorResponse("User already exists")
	}
	s.users[user] = password
	return protocol.OKResponse(protocol.DefaultConfirmation)
}

func (s *Server) handleLogin(form url.Values) protocol.Response {
	user, password := form.Get(control.FieldUser), form.Get(control.FieldPassword)

	s.mu.Lock()
	stored, exists := s.users[user]
	if !exists || stored != password {
		s.mu.Unlock()
		return protocol.ErrorResponse("Invalid credentials")
	}
	s.online[user] = true
	s.mu.Unlock()

	return protocol.OKResponse(strconv.Itoa(s.PushPort()), "Welcome "+user)
}

func (s *Server) handleMessage(form url.Values) protocol.Response {
	user, content := form.Get(control.FieldUser), form.Get(control.FieldContent)
	if !s.isOnline(user) {
		return protocol.ErrorResponse("Not logged in")
	}
	if strings.TrimSpace(content) == "" {
		return protocol.ErrorResponse("Empty message")
	}

	ts := time.Now().Format("15:04:05")
	if strings.HasPrefix(content, "@") {
		to, body, ok := strings.Cut(content[1:], " ")
		if !ok || to == "" {
			return protocol.ErrorResponse("Malformed private message")
		}
		frame := s.encode(protocol.Private(user, ts, body))
		if !s.hub.Send(to, frame) {
			return protocol.ErrorResponse("User " + to + " is not connected")
		}
		s.hub.Send(user, frame)
		return protocol.OKResponse()
	}

	s.hub.Broadcast(s.encode(protocol.Chat(user, ts, content)), "")
	return protocol.OKResponse()
}

func (s *Server) handleDisconnect(form url.Values) protocol.Response {
	user := form.Get(control.FieldUser)

	s.mu.Lock()
	wasOnline := s.online[user]
	delete(s.online, user)
	s.mu.Unlock()

	if !wasOnline {
		return protocol.ErrorResponse("Not logged in")
	}
	if s.hub.Drop(user) {
		s.announceLeave(user)
	}
	return protocol.OKResponse()
}

func (s *Server) acceptPush() {
	defer s.wg.Done()

	for {
		conn, err := s.pushLn.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.logger.Warn("failed to accept push connection", zap.Error(err))
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			conn.SetReadDeadline(time.Now().Add(identifyTimeout))
			s.serve(tcp.NewConn(conn), func() { conn.SetReadDeadline(time.Time{}) })
		}()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade push connection", zap.Error(err))
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	conn.SetReadDeadline(time.Now().Add(identifyTimeout))
	s.serve(&wsConn{conn: conn, binary: s.binary}, func() { conn.SetReadDeadline(time.Time{}) })
}

// serve binds conn to the identity in its first frame, then pumps queued
// frames to it until it is detached or the peer goes away.
func (s *Server) serve(conn transport.Conn, identified func()) {
	ctx := context.Background()

	identity, err := conn.Read(ctx)
	if err != nil {
		conn.Close()
		return
	}
	identified()

	user := strings.TrimSpace(string(identity))
	if !s.isOnline(user) {
		s.logger.Debug("rejecting unauthenticated push", zap.String("user", user))
		if data, err := s.codec.Encode(protocol.Error("Not authenticated")); err == nil {
			conn.Write(ctx, data)
		}
		conn.Close()
		return
	}

	client := s.hub.Register(user, conn)
	s.logger.Debug("push attached", zap.String("user", user), zap.String("addr", conn.RemoteAddr()))
	s.hub.Broadcast(s.encode(protocol.Notice(protocol.NoticeJoin, user+" joined the chat")), user)
	s.hub.Broadcast(s.encode(protocol.Directory(s.hub.Users()...)), "")
	s.notify()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		for data := range client.Outgoing {
			if err := conn.Write(ctx, data); err != nil {
				return
			}
		}
	}()

	for {
		if _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	if s.hub.Unregister(client) {
		s.announceLeave(user)
	}
	conn.Close()
	<-writerDone
	s.notify()
}

func (s *Server) announceLeave(user string) {
	s.hub.Broadcast(s.encode(protocol.Notice(protocol.NoticeLeave, user+" left the chat")), user)
	s.hub.Broadcast(s.encode(protocol.Directory(s.hub.Users()...)), "")
	s.notify()
}

func (s *Server) encode(ev protocol.Event) []byte {
	data, err := s.codec.Encode(ev)
	if err != nil {
		s.logger.Warn("failed to encode push frame", zap.Error(err))
		return nil
	}
	return data
}

func (s *Server) isOnline(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[user]
}

// notify wakes every WaitFor caller.
func (s *Server) notify() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// WaitFor blocks until cond holds or ctx is done. cond is re-evaluated after
// every request, attach and detach.
func (s *Server) WaitFor(ctx context.Context, cond func() bool) error {
	for {
		s.mu.Lock()
		changed := s.changed
		s.mu.Unlock()

		if cond() {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AddUser registers an account directly.
func (s *Server) AddUser(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = password
}

// Attached reports whether user has a push connection.
func (s *Server) Attached(user string) bool {
	for _, u := range s.hub.Users() {
		if u == user {
			return true
		}
	}
	return false
}

// Online reports whether user is logged in on the control side.
func (s *Server) Online(user string) bool {
	return s.isOnline(user)
}

// Push sends ev to user only.
func (s *Server) Push(user string, ev protocol.Event) bool {
	return s.hub.Send(user, s.encode(ev))
}

// PushRaw sends a pre-encoded frame to user.
func (s *Server) PushRaw(user string, frame []byte) bool {
	return s.hub.Send(user, frame)
}

// Broadcast sends ev to every attached user.
func (s *Server) Broadcast(ev protocol.Event) {
	s.hub.Broadcast(s.encode(ev), "")
}

// DropPush closes user's push connection without a control request,
// simulating a server-side disconnect.
func (s *Server) DropPush(user string) bool {
	s.mu.Lock()
	delete(s.online, user)
	s.mu.Unlock()
	return s.hub.Drop(user)
}

// SetHandler replaces the handler of endpoint. A nil h restores the default.
func (s *Server) SetHandler(endpoint string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.overrides, endpoint)
		return
	}
	s.overrides[endpoint] = h
}

// SetResponse makes endpoint answer with a fixed status and body.
func (s *Server) SetResponse(endpoint string, status int, body string) {
	s.SetHandler(endpoint, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

// Calls returns the forms received on endpoint so far.
func (s *Server) Calls(endpoint string) []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.calls[endpoint]...)
}

// ControlPort returns the port of the HTTPS control endpoint.
func (s *Server) ControlPort() int {
	return s.control.Listener.Addr().(*net.TCPAddr).Port
}

// PushPort returns the port of the push listener.
func (s *Server) PushPort() int {
	return s.pushLn.Addr().(*net.TCPAddr).Port
}

// TrustContext returns a trust context that verifies this server.
func (s *Server) TrustContext() *trust.Context {
	return s.Authority.TrustContext()
}

// Close stops every listener, detaches every client and waits for all
// server goroutines.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.pushHTTP != nil {
			s.pushHTTP.Close()
		} else {
			s.pushLn.Close()
		}
		s.hub.DropAll()
		s.control.Close()
		s.wg.Wait()
	})
}

// wsConn adapts a server-side gorilla connection to transport.Conn.
type wsConn struct {
	conn   *websocket.Conn
	binary bool
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	mt := websocket.TextMessage
	if c.binary {
		mt = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(mt, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
