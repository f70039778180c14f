package chattest_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/omochice/hybrid-chat/internal/chattest"
)

type mockConn struct {
	remoteAddr string
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	return nil, errors.New("not implemented")
}
func (m *mockConn) Write(ctx context.Context, data []byte) error { return nil }
func (m *mockConn) Close() error                                 { return nil }
func (m *mockConn) RemoteAddr() string                           { return m.remoteAddr }

func TestHub_Register(t *testing.T) {
	hub := chattest.NewHub()
	hub.Register("testuser", &mockConn{remoteAddr: "127.0.0.1:1234"})

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestHub_Register_MultipleClients(t *testing.T) {
	hub := chattest.NewHub()

	for _, user := range []string{"carol", "alice", "bob"} {
		hub.Register(user, &mockConn{remoteAddr: "127.0.0.1:1234"})
	}

	if got := hub.ClientCount(); got != 3 {
		t.Errorf("ClientCount() = %d, want 3", got)
	}
	if got, want := hub.Users(), []string{"alice", "bob", "carol"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Users() = %v, want %v", got, want)
	}
}

func TestHub_Register_ReplacesSameUser(t *testing.T) {
	hub := chattest.NewHub()
	old := hub.Register("alice", &mockConn{})
	current := hub.Register("alice", &mockConn{})

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
	if _, ok := <-old.Outgoing; ok {
		t.Error("old client queue should be closed")
	}
	if hub.Unregister(old) {
		t.Error("Unregister(old) should not remove the replacement")
	}
	if !hub.Unregister(current) {
		t.Error("Unregister(current) should succeed")
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := chattest.NewHub()
	alice := hub.Register("alice", &mockConn{})
	bob := hub.Register("bob", &mockConn{})

	hub.Broadcast([]byte("hi"), "alice")

	select {
	case data := <-bob.Outgoing:
		if string(data) != "hi" {
			t.Errorf("bob got %q, want %q", data, "hi")
		}
	default:
		t.Error("bob should have received the broadcast")
	}
	select {
	case data := <-alice.Outgoing:
		t.Errorf("skipped sender received %q", data)
	default:
	}
}

func TestHub_SendAndDrop(t *testing.T) {
	hub := chattest.NewHub()
	hub.Register("alice", &mockConn{})

	if !hub.Send("alice", []byte("x")) {
		t.Error("Send to attached user should succeed")
	}
	if hub.Send("bob", []byte("x")) {
		t.Error("Send to unknown user should fail")
	}
	if !hub.Drop("alice") {
		t.Error("Drop should detach alice")
	}
	if hub.Drop("alice") {
		t.Error("second Drop should report nothing removed")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}
