// Package session owns the lifecycle of one user's chat session: login over
// the control channel, the push channel bound to the user, message sending
// and logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omochice/hybrid-chat/internal/dispatch"
	"github.com/omochice/hybrid-chat/internal/push"
	"github.com/omochice/hybrid-chat/internal/trust"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// Control is the control channel used by a Coordinator.
// *control.Client implements it.
type Control interface {
	Login(ctx context.Context, user, password string) (protocol.Response, error)
	Register(ctx context.Context, user, password string) (protocol.Response, error)
	Send(ctx context.Context, user, content string) (protocol.Response, error)
	Disconnect(ctx context.Context, user string) (protocol.Response, error)
}

// pushSession is one open push channel and its reader.
type pushSession struct {
	ch        *push.Channel
	voluntary atomic.Bool
}

// stop marks the teardown as voluntary before closing, so the reader never
// reports it as a lost connection.
func (ps *pushSession) stop() {
	ps.voluntary.Store(true)
	ps.ch.Close()
}

// Coordinator drives a session through its phases and reports progress to
// a dispatch.Handler.
//
// The synchronous methods (Login, RegisterUser, Send, Disconnect) report
// successes to the handler and return failures. The asynchronous methods
// (Authenticate, Register, SendText, Logout) run the same operations on a
// background goroutine and report failures through ReportError.
type Coordinator struct {
	host     string
	control  Control
	trust    *trust.Context
	handler  dispatch.Handler
	dispatch *dispatch.Dispatcher
	pushOpts []push.Option
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	phase  Phase
	user   string
	id     string
	active *pushSession
	closed bool
	// logout was requested while authenticating.
	logoutPending bool
}

type options struct {
	pushOpts []push.Option
	logger   *zap.Logger
}

// Option configures a Coordinator.
type Option func(*options)

// WithPushOptions passes options to every push.Open call.
func WithPushOptions(opts ...push.Option) Option {
	return func(o *options) { o.pushOpts = append(o.pushOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an idle Coordinator. host is the server the push channel
// connects to; tc must be the trust context ctl verifies with.
func New(host string, ctl Control, tc *trust.Context, h dispatch.Handler, opts ...Option) *Coordinator {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		host:     host,
		control:  ctl,
		trust:    tc,
		handler:  h,
		dispatch: dispatch.New(h, o.logger),
		pushOpts: append(o.pushOpts, push.WithLogger(o.logger)),
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Snapshot returns the current phase, user and session id.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{ID: c.id, User: c.user, Phase: c.phase}
}

// Login authenticates user and opens the push channel. It is valid while
// Idle or Authenticated; a re-login closes the current push channel before
// anything else happens, so a failed re-login leaves the session Idle.
// On success ReportAuthenticated is called before any pushed event is
// dispatched.
// A logout requested while the login is in flight wins: the new session is
// closed again and nothing is reported.
func (c *Coordinator) Login(ctx context.Context, user, password string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != PhaseIdle && c.phase != PhaseAuthenticated {
		c.mu.Unlock()
		return &StateError{Op: "login", Phase: c.phase}
	}
	stale := c.active
	c.active = nil
	c.phase = PhaseAuthenticating
	c.user = user
	c.id = ""
	c.logoutPending = false
	c.mu.Unlock()

	if stale != nil {
		c.logger.Debug("closing stale push channel", zap.String("user", stale.ch.Identity()))
		stale.stop()
	}

	resp, err := c.control.Login(ctx, user, password)
	if err != nil {
		c.reset()
		return fmt.Errorf("login: %w", err)
	}
	if !resp.OK() {
		c.reset()
		return &RejectedError{Op: "login", Detail: resp.Detail()}
	}
	if c.takeLogout() {
		c.finishLogout(ctx, nil, user)
		return nil
	}
	port, err := resp.PushPort()
	if err != nil {
		c.reset()
		return fmt.Errorf("login: %w", err)
	}

	ch, err := push.Open(ctx, c.host, port, c.trust, user, c.pushOpts...)
	if err != nil {
		c.reset()
		return fmt.Errorf("login: %w", err)
	}

	ps := &pushSession{ch: ch}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ps.stop()
		c.reset()
		return ErrClosed
	}
	if c.logoutPending {
		c.phase = PhaseDisconnecting
		c.mu.Unlock()
		c.finishLogout(ctx, ps, user)
		return nil
	}
	c.active = ps
	c.phase = PhaseAuthenticated
	c.id = uuid.NewString()
	id := c.id
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("session authenticated", zap.String("user", user), zap.String("session", id))
	c.handler.ReportAuthenticated(resp.Welcome())

	go c.read(ps, id)
	return nil
}

// RegisterUser creates an account. It is valid only while Idle and always
// returns to Idle; it never opens a push channel.
func (c *Coordinator) RegisterUser(ctx context.Context, user, password string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return &StateError{Op: "register", Phase: c.phase}
	}
	c.phase = PhaseAuthenticating
	c.user = user
	c.mu.Unlock()
	defer c.reset()

	resp, err := c.control.Register(ctx, user, password)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if !resp.OK() {
		return &RejectedError{Op: "register", Detail: resp.Detail()}
	}

	c.logger.Info("user registered", zap.String("user", user))
	c.handler.ReportRegistered(resp.Confirmation())
	return nil
}

// Send posts chat text as the current user. It never touches the push
// channel. Blank text is ignored.
func (c *Coordinator) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.phase != PhaseAuthenticated {
		phase := c.phase
		c.mu.Unlock()
		return &StateError{Op: "send", Phase: phase}
	}
	user := c.user
	c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	resp, err := c.control.Send(ctx, user, text)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if resp.Rejected() {
		return &RejectedError{Op: "send", Detail: resp.Detail()}
	}
	return nil
}

// Disconnect logs out. It closes the push channel first, then notifies the
// server on a best-effort basis, and always ends Idle. It is a no-op while
// Idle or already disconnecting. While authenticating the logout is
// deferred: the pending login finishes by logging out instead of
// reporting success.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseIdle, PhaseDisconnecting:
		c.mu.Unlock()
		return nil
	case PhaseAuthenticating:
		c.logoutPending = true
		c.mu.Unlock()
		c.logger.Debug("logout deferred until authentication completes")
		return nil
	}
	ps := c.active
	c.active = nil
	c.phase = PhaseDisconnecting
	user, id := c.user, c.id
	c.mu.Unlock()

	if ps != nil {
		ps.stop()
	}
	c.notifyDisconnect(ctx, user, id)

	c.reset()
	c.logger.Info("session closed", zap.String("user", user), zap.String("session", id))
	return nil
}

// takeLogout moves an authenticating session with a pending logout to
// Disconnecting and reports whether it did.
func (c *Coordinator) takeLogout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.logoutPending {
		return false
	}
	c.phase = PhaseDisconnecting
	return true
}

// finishLogout completes a logout deferred during Login. ps may be nil when
// the push channel was never opened.
func (c *Coordinator) finishLogout(ctx context.Context, ps *pushSession, user string) {
	if ps != nil {
		ps.stop()
	}
	c.notifyDisconnect(ctx, user, "")
	c.reset()
	c.logger.Info("login abandoned by logout", zap.String("user", user))
}

func (c *Coordinator) notifyDisconnect(ctx context.Context, user, id string) {
	resp, err := c.control.Disconnect(ctx, user)
	switch {
	case err != nil:
		c.logger.Debug("disconnect notify failed", zap.String("session", id), zap.Error(err))
	case resp.Rejected():
		c.logger.Debug("disconnect notify rejected", zap.String("session", id), zap.String("detail", resp.Detail()))
	}
}

// Authenticate runs Login in the background.
func (c *Coordinator) Authenticate(user, password string) {
	c.async(func(ctx context.Context) error { return c.Login(ctx, user, password) })
}

// Register runs RegisterUser in the background.
func (c *Coordinator) Register(user, password string) {
	c.async(func(ctx context.Context) error { return c.RegisterUser(ctx, user, password) })
}

// SendText runs Send in the background.
func (c *Coordinator) SendText(text string) {
	c.async(func(ctx context.Context) error { return c.Send(ctx, text) })
}

// Logout runs Disconnect in the background.
func (c *Coordinator) Logout() {
	c.async(c.Disconnect)
}

// Close stops the push channel without notifying the server, cancels
// background operations and waits for every goroutine to finish. Handler
// calls from those goroutines may still happen while Close waits.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ps := c.active
	c.active = nil
	c.mu.Unlock()

	c.cancel()
	if ps != nil {
		ps.stop()
	}
	c.wg.Wait()
	c.reset()
}

func (c *Coordinator) async(fn func(ctx context.Context) error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		err := fn(c.ctx)
		switch {
		case err == nil:
		case c.ctx.Err() != nil:
			c.logger.Debug("session operation stopped by close", zap.Error(err))
		case errors.Is(err, ErrInvalidPhase):
			c.logger.Debug("session operation ignored", zap.Error(err))
		default:
			c.logger.Debug("session operation failed", zap.Error(err))
			c.handler.ReportError(userMessage(err))
		}
	}()
}

// read pumps events from ps to the dispatcher until the channel ends.
func (c *Coordinator) read(ps *pushSession, id string) {
	defer c.wg.Done()

	for {
		ev, err := ps.ch.NextEvent(c.ctx)
		if ps.voluntary.Load() {
			return
		}
		if err != nil {
			c.lost(ps, id, err)
			return
		}
		c.dispatch.Dispatch(ev)
	}
}

// lost handles an involuntary end of ps. It reports at most once and only
// if ps is still the active channel.
func (c *Coordinator) lost(ps *pushSession, id string, cause error) {
	c.mu.Lock()
	if c.active != ps {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.phase = PhaseIdle
	user := c.user
	c.user = ""
	c.id = ""
	c.mu.Unlock()

	ps.ch.Close()
	c.logger.Warn("push channel lost",
		zap.String("user", user),
		zap.String("session", id),
		zap.Error(cause))
	c.handler.ReportSessionEnded()
}

func (c *Coordinator) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseIdle
	c.user = ""
	c.id = ""
	c.logoutPending = false
}
