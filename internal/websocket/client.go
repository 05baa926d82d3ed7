package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/thereayou/groupchat/internal/models"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512 * 1024
)

// FrameHandler processes frames the hub does not handle itself.
type FrameHandler interface {
	HandleFrame(client *Client, frame *Frame) error
}

type Client struct {
	ID     uuid.UUID
	UserID models.ID
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub

	mu       sync.RWMutex
	channels map[models.ID]bool

	// closed is set once Send is closed. Guarded by Hub.mu.
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID models.ID) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		Hub:      hub,
		channels: make(map[models.ID]bool),
	}
}

// ReadPump reads frames until the connection fails, then unregisters.
func (c *Client) ReadPump(handler FrameHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame Frame
		if err := c.Conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "client_id", c.ID, "err", err)
			}
			return
		}

		frame.UserID = c.UserID
		if frame.Type == TypePong {
			continue
		}

		if err := handler.HandleFrame(c, &frame); err != nil {
			slog.Debug("frame rejected", "client_id", c.ID, "type", frame.Type, "err", err)
			c.SendError(err.Error())
		}
	}
}

// WritePump drains Send to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendFrame(msgType MessageType, channelID *models.ID, data interface{}) error {
	frame := Frame{
		Type:      msgType,
		ChannelID: channelID,
		UserID:    c.UserID,
		Timestamp: time.Now(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		frame.Data = raw
	}

	encoded, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- encoded:
		return nil
	default:
		return ErrClientQueueFull
	}
}

// Context is cancelled when the hub stops.
func (c *Client) Context() context.Context {
	return c.Hub.ctx
}

func (c *Client) SendError(errorMsg string) {
	_ = c.SendFrame(TypeError, nil, map[string]string{"error": errorMsg})
}

func (c *Client) IsInChannel(channelID models.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channelID]
}

func (c *Client) Channels() []models.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.ID, 0, len(c.channels))
	for id := range c.channels {
		out = append(out, id)
	}
	return out
}

func (c *Client) addChannel(id models.ID) {
	c.mu.Lock()
	c.channels[id] = true
	c.mu.Unlock()
}

func (c *Client) removeChannel(id models.ID) {
	c.mu.Lock()
	delete(c.channels, id)
	c.mu.Unlock()
}
