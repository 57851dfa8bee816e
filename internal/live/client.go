package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 64
)

type Client struct {
	ID string

	conn   *websocket.Conn
	hub    *Hub
	send   chan *Message
	logger logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id string, conn *websocket.Conn, hub *Hub, logger logging.Logger) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		hub:    hub,
		send:   make(chan *Message, sendBuffer),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// trySend never blocks; false means the buffer is full or the client is gone.
func (c *Client) trySend(msg *Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.logger.Warnf("WebSocket closed unexpectedly for client %s: %v", c.ID, err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var msg struct {
		Type MessageType      `json:"type"`
		Data SubscriptionData `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.trySend(NewErrorMessage("INVALID_MESSAGE", "Message is not valid JSON"))
		return
	}

	switch msg.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if msg.Data.Room == "" {
			c.trySend(NewErrorMessage("INVALID_ROOM", "Room is required"))
			return
		}
		room := cache.NormalizeKey(msg.Data.Room)
		text := "Subscribed to room"
		if msg.Type == MessageTypeSubscribe {
			c.hub.subscribe(c, room)
		} else {
			c.hub.unsubscribe(c, room)
			text = "Unsubscribed from room"
		}
		c.trySend(NewMessage(MessageTypeSuccess, &SuccessData{Message: text, Room: room}))
	case MessageTypePing:
		c.trySend(NewMessage(MessageTypePong, nil))
	default:
		c.trySend(NewErrorMessage("INVALID_MESSAGE_TYPE", "Unknown message type"))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debugf("Error writing message to client %s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}
