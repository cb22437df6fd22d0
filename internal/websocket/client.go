package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound traffic is only the tiny subscribe/unsubscribe/ping control
	// messages, so anything larger is a misbehaving client
	maxControlMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Client is one live WebSocket connection, identified for logging
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
}

// ClientMessage is a control message sent by the game client
type ClientMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		logger: logger,
	}
}

// readPump reads control messages until the connection drops, then
// unregisters the client from the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxControlMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("invalid message format", "error", err)
			c.enqueue(Message{
				Type:      MessageTypeError,
				Data:      map[string]string{"error": "invalid message format"},
				Timestamp: time.Now(),
			})
			continue
		}

		c.handleMessage(&msg)
	}
}

// handleMessage dispatches one control message
func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		if msg.PlayerID == "" {
			c.enqueue(Message{
				Type:      MessageTypeError,
				Data:      map[string]string{"error": "playerId required for subscribe"},
				Timestamp: time.Now(),
			})
			return
		}
		c.hub.Subscribe(c, msg.PlayerID)
		c.enqueue(Message{
			Type:      "subscribed",
			PlayerID:  msg.PlayerID,
			Data:      map[string]string{"status": "ok"},
			Timestamp: time.Now(),
		})

	case MessageTypeUnsubscribe:
		if msg.PlayerID == "" {
			return
		}
		c.hub.Unsubscribe(c, msg.PlayerID)
		c.enqueue(Message{
			Type:      "unsubscribed",
			PlayerID:  msg.PlayerID,
			Data:      map[string]string{"status": "ok"},
			Timestamp: time.Now(),
		})

	case MessageTypePing:
		c.enqueue(Message{Type: MessageTypePong, Timestamp: time.Now()})

	default:
		c.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// enqueue drops the message when the client's send buffer is full; a stalled
// consumer must not block the read loop
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump flushes the send channel to the connection and keeps the
// connection alive with periodic pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain whatever queued up behind this message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and starts the client pumps
func ServeWs(hub *Hub, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, logger)
	hub.Register(client)

	go client.writePump()
	go client.readPump()

	logger.Debug("new websocket connection", "client_id", client.id)
}
