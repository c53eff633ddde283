package websocket

import (
	"context"
	"strings"
	"time"

	"freight-billing-backend/config"
	"freight-billing-backend/ingestion/services"
	"freight-billing-backend/middleware"
	"freight-billing-backend/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UploadObserver starts an observation of one upload's processing status.
type UploadObserver interface {
	Observe(ctx context.Context, uploadID uuid.UUID, onEvent func(services.Event)) (*services.Subscription, error)
}

// WsHandler upgrades requests and streams upload events and notifications to the client.
type WsHandler struct {
	hub      *Hub
	observer UploadObserver
}

func NewWsHandler(hub *Hub, observer UploadObserver) *WsHandler {
	return &WsHandler{hub: hub, observer: observer}
}

type uploadEventPayload struct {
	UploadID    string      `json:"upload_id"`
	Signal      string      `json:"signal"`
	Status      string      `json:"status,omitempty"`
	Store       string      `json:"store,omitempty"`
	Terminal    bool        `json:"terminal"`
	Error       string      `json:"error,omitempty"`
	ResultStore string      `json:"result_store,omitempty"`
	LineItems   interface{} `json:"line_items,omitempty"`
	Upload      interface{} `json:"upload,omitempty"`
}

// UploadEventMessage converts a state machine event into the wire message.
func UploadEventMessage(uploadID uuid.UUID, e services.Event) WebSocketMessage {
	payload := uploadEventPayload{
		UploadID:    uploadID.String(),
		Signal:      string(e.Signal),
		Store:       e.Store,
		Terminal:    e.Terminal(),
		Error:       e.ErrorMessage(),
		ResultStore: e.ResultStore,
	}
	if e.Upload != nil {
		payload.Status = string(e.Upload.ProcessingStatus)
		payload.Upload = e.Upload
	}
	if len(e.LineItems) > 0 {
		payload.LineItems = e.LineItems
	}
	at := e.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	return WebSocketMessage{
		Type:      MessageTypeUploadEvent,
		Payload:   payload,
		Timestamp: at,
		Topic:     uploadID.String(),
	}
}

// HandleWebSocket serves /ws. With ?upload=<id> the connection follows that upload until
// it reaches a terminal state; notifications for subscribed topics flow either way.
func (h *WsHandler) HandleWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	actor := middleware.Actor(c)
	client := NewClient(h.hub, nil, actor)
	if actor != "" {
		client.Subscribe(actor)
	}

	var sub *services.Subscription
	if raw := strings.TrimSpace(c.Query("upload")); raw != "" {
		uploadID, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid upload ID",
			})
		}
		sub, err = h.observeUpload(client, uploadID)
		if err != nil {
			config.Logger.Warn("WebSocket upload observation failed",
				zap.String("upload_id", uploadID.String()),
				zap.Error(err))
			return utils.RespondError(c, err, "Failed to observe upload")
		}
	}

	// The connection handler runs after this request handler has returned.
	err := websocket.New(func(conn *websocket.Conn) {
		if sub != nil {
			defer sub.Cancel()
		}
		client.Conn = conn
		h.hub.Register(client)
		config.Logger.Info("WebSocket client registered",
			zap.String("client_id", client.ID.String()),
			zap.String("actor", actor))

		go client.writePump()
		client.readPump()
	})(c)
	if err != nil && sub != nil {
		sub.Cancel()
	}
	return err
}

// observeUpload streams the upload's events to the client. The client is not subscribed
// to the upload topic, so terminal notifications there do not duplicate the events.
// Events queue on the client until the connection is up.
func (h *WsHandler) observeUpload(client *Client, uploadID uuid.UUID) (*services.Subscription, error) {
	return h.observer.Observe(context.Background(), uploadID, func(e services.Event) {
		if err := client.SendMessage(UploadEventMessage(uploadID, e)); err != nil {
			config.Logger.Debug("Dropped upload event for websocket client",
				zap.String("upload_id", uploadID.String()),
				zap.Error(err))
		}
	})
}

// readPump handles topic subscriptions from the client until the connection closes.
func (c *Client) readPump() {
	defer func() {
		config.Logger.Info("WebSocket client disconnecting",
			zap.String("client_id", c.ID.String()),
			zap.String("actor", c.Actor))
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg WebSocketMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				config.Logger.Warn("WebSocket unexpected close",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
			}
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg WebSocketMessage) {
	topic := strings.TrimSpace(msg.Topic)
	switch msg.Type {
	case MessageTypeSubscribe:
		if topic == "" {
			c.sendError("topic is required")
			return
		}
		c.Subscribe(topic)
	case MessageTypeUnsubscribe:
		c.Unsubscribe(topic)
	default:
		config.Logger.Warn("Unknown WebSocket message type",
			zap.String("type", string(msg.Type)),
			zap.String("client_id", c.ID.String()))
		c.sendError("Unknown message type: " + string(msg.Type))
	}
}

// writePump sends queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(message); err != nil {
				config.Logger.Debug("WebSocket write error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				config.Logger.Debug("WebSocket ping error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) sendError(message string) {
	c.SendMessage(WebSocketMessage{
		Type:      MessageTypeError,
		Payload:   map[string]interface{}{"message": message},
		Timestamp: time.Now(),
	})
}
