package chattest

import (
	"sort"
	"sync"

	"github.com/omochice/hybrid-chat/internal/transport"
)

// outgoingBuffer is the per-client queue depth. Frames beyond it are dropped.
const outgoingBuffer = 32

// Client represents one attached push connection.
type Client struct {
	Conn     transport.Conn
	Username string
	Outgoing chan []byte
}

// Hub manages attached push clients keyed by user and handles broadcast.
// Both push transports share a single Hub instance.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register attaches conn for user. A previous client of the same user is
// detached first; its writer drains and closes the old connection.
func (h *Hub) Register(user string, conn transport.Conn) *Client {
	client := &Client{
		Conn:     conn,
		Username: user,
		Outgoing: make(chan []byte, outgoingBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[user]; ok {
		close(old.Outgoing)
	}
	h.clients[user] = client
	return client
}

// Unregister detaches client if it is still the current one for its user.
// It reports whether anything was removed.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.Username] != client {
		return false
	}
	delete(h.clients, client.Username)
	close(client.Outgoing)
	return true
}

// Drop detaches whichever client user currently has.
func (h *Hub) Drop(user string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[user]
	if !ok {
		return false
	}
	delete(h.clients, user)
	close(client.Outgoing)
	return true
}

// DropAll detaches every client.
func (h *Hub) DropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for user, client := range h.clients {
		delete(h.clients, user)
		close(client.Outgoing)
	}
}

// Send queues data for user. It reports whether user is attached.
func (h *Hub) Send(user string, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[user]
	if !ok {
		return false
	}
	enqueue(client, data)
	return true
}

// Broadcast queues data for every attached client except skip.
func (h *Hub) Broadcast(data []byte, skip string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for user, client := range h.clients {
		if user != skip {
			enqueue(client, data)
		}
	}
}

// Users returns the attached users in sorted order.
func (h *Hub) Users() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.clients))
	for user := range h.clients {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// ClientCount returns number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func enqueue(client *Client, data []byte) {
	select {
	case client.Outgoing <- data:
	default:
	}
}
