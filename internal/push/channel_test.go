package push_test

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omochice/hybrid-chat/internal/chattest"
	"github.com/omochice/hybrid-chat/internal/push"
	"github.com/omochice/hybrid-chat/internal/trust"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

// mockServer accepts one TLS connection, reports the identity line and then
// lets the test script what is written back.
type mockServer struct {
	ln       net.Listener
	trust    *trust.Context
	identity chan string
	conns    chan net.Conn
}

func startMockServer(t *testing.T) *mockServer {
	t.Helper()
	ca, err := chattest.NewAuthority()
	require.NoError(t, err)
	leaf, err := ca.Issue("127.0.0.1")
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{leaf}})
	require.NoError(t, err)

	s := &mockServer{
		ln:       ln,
		trust:    ca.TrustContext(),
		identity: make(chan string, 1),
		conns:    make(chan net.Conn, 1),
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			conn.Close()
			return
		}
		s.identity <- line
		s.conns <- conn
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *mockServer) port(t *testing.T) int {
	_, p, err := net.SplitHostPort(s.ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return port
}

func (s *mockServer) accept(t *testing.T) (string, net.Conn) {
	t.Helper()
	select {
	case id := <-s.identity:
		return id, <-s.conns
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive identity")
		return "", nil
	}
}

func TestOpen_IdentifiesAndReadsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := startMockServer(t)
	ch, err := push.Open(context.Background(), "127.0.0.1", srv.port(t), srv.trust, "alice")
	require.NoError(t, err)
	defer ch.Close()

	id, conn := srv.accept(t)
	defer conn.Close()
	assert.Equal(t, "alice\n", id)
	assert.Equal(t, "alice", ch.Identity())

	_, err = conn.Write([]byte("USERS|alice,bob\n\n[12:00:01] bob: hi\nERROR|oops\n"))
	require.NoError(t, err)

	want := []protocol.Event{
		protocol.Directory("alice", "bob"),
		protocol.Chat("bob", "12:00:01", "hi"),
		protocol.Error("oops"),
	}
	for _, w := range want {
		ev, err := ch.NextEvent(context.Background())
		require.NoError(t, err)
		assert.Equal(t, w, ev)
	}

	conn.Close()
	_, err = ch.NextEvent(context.Background())
	assert.ErrorIs(t, err, push.ErrClosed)
}

func TestChannel_CloseUnblocksNextEvent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := startMockServer(t)
	ch, err := push.Open(context.Background(), "127.0.0.1", srv.port(t), srv.trust, "bob")
	require.NoError(t, err)
	_, conn := srv.accept(t)
	defer conn.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := ch.NextEvent(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, ch.Close())
	assert.NotPanics(t, func() { _ = ch.Close() })

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, push.ErrClosed), "err = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("NextEvent did not return after Close")
	}

	select {
	case <-ch.Done():
	default:
		t.Error("Done() should be closed")
	}
}

func TestOpen_UntrustedServer(t *testing.T) {
	srv := startMockServer(t)
	other, err := chattest.NewAuthority()
	require.NoError(t, err)

	_, err = push.Open(context.Background(), "127.0.0.1", srv.port(t), other.TrustContext(), "mallory")
	assert.Error(t, err)
}
