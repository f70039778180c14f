package tcp_test

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"

	"github.com/omochice/hybrid-chat/internal/chattest"
	"github.com/omochice/hybrid-chat/internal/transport/tcp"
)

func startTLSEchoServer(t *testing.T) (*chattest.Authority, string) {
	t.Helper()
	ca, err := chattest.NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority() error = %v", err)
	}
	leaf, err := ca.Issue("127.0.0.1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{leaf}})
	if err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					c.Write([]byte(line))
				}
			}(conn)
		}
	}()

	return ca, ln.Addr().String()
}

func TestDialer_Dial(t *testing.T) {
	ca, addr := startTLSEchoServer(t)

	d := tcp.Dialer{Timeout: 2 * time.Second}
	conn, err := d.Dial(context.Background(), addr, ca.TrustContext().ClientConfig("127.0.0.1"))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Write(context.Background(), []byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "ping" {
		t.Errorf("Read() = %q, want %q", data, "ping")
	}
}

func TestDialer_RejectsUnknownAuthority(t *testing.T) {
	_, addr := startTLSEchoServer(t)
	other, err := chattest.NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority() error = %v", err)
	}

	d := tcp.Dialer{Timeout: 2 * time.Second}
	if _, err := d.Dial(context.Background(), addr, other.TrustContext().ClientConfig("127.0.0.1")); err == nil {
		t.Error("expected handshake failure against an untrusted server")
	}
}

func TestDialer_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ca, err := chattest.NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority() error = %v", err)
	}
	d := tcp.Dialer{Timeout: time.Second}
	if _, err := d.Dial(context.Background(), addr, ca.TrustContext().ClientConfig("127.0.0.1")); err == nil {
		t.Error("expected error dialing a closed port")
	}
}
