package sse

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client is one open event stream belonging to a party.
type Client struct {
	ClientID    string
	PartyID     string
	ConnectedAt time.Time
	MessageChan chan *Message
}

// NewClient creates a client with a buffered outbox.
func NewClient(clientID, partyID string) *Client {
	return &Client{
		ClientID:    clientID,
		PartyID:     partyID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Message, 64),
	}
}

// Message is one server-sent event.
type Message struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewMessage(event string, data json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// key scopes client ids to their party so one party can never replace another's stream.
func (c *Client) key() string {
	return c.PartyID + "/" + c.ClientID
}

// Hub manages SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds c, replacing and closing an older stream of the same party with the same id.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[c.key()]; ok && old != c {
		close(old.MessageChan)
	}
	h.clients[c.key()] = c
}

// Unregister removes c if it is still the registered stream for its party and id.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.key()]; ok && cur == c {
		close(c.MessageChan)
		delete(h.clients, c.key())
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToParty delivers msg to every stream of partyID. Slow clients drop messages.
func (h *Hub) BroadcastToParty(partyID string, msg *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		if c.PartyID == partyID && trySend(c, msg) {
			sent++
		}
	}
	return sent
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.MessageChan)
		delete(h.clients, id)
	}
}

func trySend(c *Client, msg *Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
