package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"freight-billing-backend/utils"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeUploadEvent  MessageType = "UPLOAD_EVENT"
	MessageTypeNotification MessageType = "NOTIFICATION"
	MessageTypeSubscribe    MessageType = "SUBSCRIBE"
	MessageTypeUnsubscribe  MessageType = "UNSUBSCRIBE"
	MessageTypeError        MessageType = "ERROR"
)

// BroadcastTopic reaches every connected client regardless of subscriptions.
const BroadcastTopic = ""

type WebSocketMessage struct {
	Type      MessageType `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	Topic     string      `json:"topic,omitempty"`
}

var ErrSendBufferFull = errors.New("client send buffer is full")
var ErrClientClosed = errors.New("client is closed")

type Client struct {
	ID    uuid.UUID
	Actor string
	Conn  *websocket.Conn
	Hub   *Hub
	Send  chan WebSocketMessage

	mu     sync.RWMutex
	topics map[string]bool
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, actor string) *Client {
	return &Client{
		ID:     uuid.New(),
		Actor:  actor,
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan WebSocketMessage, 256),
		topics: make(map[string]bool),
	}
}

// Hub fans notifications and upload events out to connected clients by topic.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves registrations until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
		}
	}
}

// Register adds client. After Run has stopped the client is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify implements utils.Notifier. It never blocks; slow clients are dropped.
func (h *Hub) Notify(n utils.Notification) {
	at := n.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	h.BroadcastToTopic(n.Topic, WebSocketMessage{
		Type: MessageTypeNotification,
		Payload: map[string]interface{}{
			"level":   n.Level,
			"message": n.Message,
		},
		Timestamp: at,
		Topic:     n.Topic,
	})
}

// BroadcastToTopic sends message to every client subscribed to topic, or to everyone for
// BroadcastTopic.
func (h *Hub) BroadcastToTopic(topic string, message WebSocketMessage) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients {
		if topic != BroadcastTopic && !client.IsSubscribed(topic) {
			continue
		}
		if err := client.SendMessage(message); errors.Is(err, ErrSendBufferFull) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			client.close()
		}
	}
	h.mu.Unlock()
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetTopicSubscribers returns all clients subscribed to topic.
func (h *Hub) GetTopicSubscribers(topic string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var subscribers []*Client
	for client := range h.clients {
		if client.IsSubscribed(topic) {
			subscribers = append(subscribers, client)
		}
	}
	return subscribers
}

func (c *Client) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = true
}

func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

func (c *Client) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

// SendMessage queues msg without blocking.
func (c *Client) SendMessage(msg WebSocketMessage) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}
