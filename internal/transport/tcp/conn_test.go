package tcp_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/omochice/hybrid-chat/internal/transport"
	"github.com/omochice/hybrid-chat/internal/transport/tcp"
	"github.com/omochice/hybrid-chat/pkg/protocol"
)

func TestConn_ImplementsInterface(t *testing.T) {
	var _ transport.Conn = (*tcp.Conn)(nil)
}

func TestConn_Read(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		server.Write([]byte("first\r\nsecond\nlast"))
		server.Close()
	}()

	for _, want := range []string{"first", "second", "last"} {
		data, err := conn.Read(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != want {
			t.Errorf("Read() = %q, want %q", string(data), want)
		}
	}

	if _, err := conn.Read(context.Background()); err != io.EOF {
		t.Errorf("Read() after close error = %v, want io.EOF", err)
	}
}

func TestConn_Read_LineTooLong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		server.Write([]byte("ok\n"))
		server.Write(bytes.Repeat([]byte("x"), tcp.MaxLineSize+1))
	}()

	data, err := conn.Read(context.Background())
	if err != nil || string(data) != "ok" {
		t.Fatalf("Read() = %q, %v, want %q", string(data), err, "ok")
	}

	if _, err := conn.Read(context.Background()); !errors.Is(err, protocol.ErrMalformedFrame) {
		t.Errorf("Read() of oversized line error = %v, want ErrMalformedFrame", err)
	}
}

func TestConn_Read_MaxLine(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)
	line := bytes.Repeat([]byte("y"), tcp.MaxLineSize-1)

	go func() {
		server.Write(append(line, '\n'))
	}()

	data, err := conn.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(data, line) {
		t.Errorf("Read() returned %d bytes, want %d", len(data), len(line))
	}
}

func TestConn_Write(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	go func() {
		err := conn.Write(context.Background(), []byte("alice"))
		if err != nil {
			t.Errorf("Write() error = %v", err)
		}
	}()

	buf := make([]byte, 1024)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read error: %v", err)
	}
	if string(buf[:n]) != "alice\n" {
		t.Errorf("server received %q, want %q", string(buf[:n]), "alice\n")
	}
}

func TestConn_CloseUnblocksRead(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	conn := tcp.NewConn(client)

	errCh := make(chan error, 1)
	go func() {
		_, err := conn.Read(context.Background())
		errCh <- err
	}()

	if err := conn.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := <-errCh; err == nil {
		t.Error("expected error from Read after Close, got nil")
	}
}

func TestConn_RemoteAddr(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := tcp.NewConn(client)

	addr := conn.RemoteAddr()
	if addr == "" {
		t.Error("RemoteAddr() returned empty string")
	}
}
