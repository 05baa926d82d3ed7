package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/groupchat/internal/models"
)

type MessageType string

const (
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	TypeMessage MessageType = "message"

	TypeChannelJoin    MessageType = "channel_join"
	TypeChannelLeave   MessageType = "channel_leave"
	TypeChannelUsers   MessageType = "channel_users"
	TypeChannelEvicted MessageType = "channel_evicted"

	TypeUserOnline  MessageType = "user_online"
	TypeUserOffline MessageType = "user_offline"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Type      MessageType     `json:"type"`
	ChannelID *models.ID      `json:"channel_id,omitempty"`
	UserID    models.ID       `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessagePayload is the data of a TypeMessage frame.
type MessagePayload struct {
	Seq       uint64             `json:"seq,omitempty"`
	Content   string             `json:"content"`
	Kind      models.MessageKind `json:"kind,omitempty"`
	CreatedAt time.Time          `json:"created_at,omitempty"`
}

// Hub tracks live connections and which channel rooms they have joined.
type Hub struct {
	clients map[uuid.UUID]*Client

	// one user may hold several connections
	userClients map[models.ID]map[uuid.UUID]*Client

	rooms map[models.ID]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[uuid.UUID]*Client),
		userClients: make(map[models.ID]map[uuid.UUID]*Client),
		rooms:       make(map[models.ID]map[uuid.UUID]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
		log:         slog.Default().With("component", "hub"),
	}
}

func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop ends Run and closes every connection.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		h.closeSendUnsafe(client)
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, id)
	}
	h.userClients = make(map[models.ID]map[uuid.UUID]*Client)
	h.rooms = make(map[models.ID]map[uuid.UUID]*Client)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if _, ok := h.userClients[client.UserID]; !ok {
		h.userClients[client.UserID] = make(map[uuid.UUID]*Client)
		h.notifyUserStatus(client.UserID, TypeUserOnline)
	}
	h.userClients[client.UserID][client.ID] = client

	h.log.Debug("client registered", "client_id", client.ID, "user_id", client.UserID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for _, channelID := range client.Channels() {
		h.removeFromRoomUnsafe(client, channelID)
	}
	if userClients, ok := h.userClients[client.UserID]; ok {
		delete(userClients, client.ID)
		if len(userClients) == 0 {
			delete(h.userClients, client.UserID)
			h.notifyUserStatus(client.UserID, TypeUserOffline)
		}
	}
	delete(h.clients, client.ID)
	h.closeSendUnsafe(client)

	h.log.Debug("client unregistered", "client_id", client.ID, "user_id", client.UserID)
}

// JoinRoom subscribes client to a channel's live messages. Access is checked
// by the caller.
func (h *Hub) JoinRoom(client *Client, channelID models.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[channelID]; !ok {
		h.rooms[channelID] = make(map[uuid.UUID]*Client)
	}
	h.rooms[channelID][client.ID] = client
	client.addChannel(channelID)

	h.broadcastToRoomExcept(channelID, encode(Frame{
		Type:      TypeChannelJoin,
		ChannelID: &channelID,
		UserID:    client.UserID,
		Timestamp: time.Now(),
	}), client.ID)
	h.sendRoomUsers(client, channelID)
}

func (h *Hub) LeaveRoom(client *Client, channelID models.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomUnsafe(client, channelID)
}

func (h *Hub) removeFromRoomUnsafe(client *Client, channelID models.ID) {
	room, ok := h.rooms[channelID]
	if !ok {
		return
	}
	if _, ok := room[client.ID]; !ok {
		return
	}
	delete(room, client.ID)
	client.removeChannel(channelID)

	if len(room) == 0 {
		delete(h.rooms, channelID)
		return
	}
	h.broadcastToRoomExcept(channelID, encode(Frame{
		Type:      TypeChannelLeave,
		ChannelID: &channelID,
		UserID:    client.UserID,
		Timestamp: time.Now(),
	}), client.ID)
}

// PublishMessage fans a stored chat message out to the channel room.
func (h *Hub) PublishMessage(message *models.Message) {
	payload, err := json.Marshal(MessagePayload{
		Seq:       message.Seq,
		Content:   message.Content,
		Kind:      message.Kind,
		CreatedAt: message.CreatedAt,
	})
	if err != nil {
		h.log.Error("encode message", "err", err)
		return
	}
	channelID := message.ChannelID
	h.SendToRoom(channelID, encode(Frame{
		Type:      TypeMessage,
		ChannelID: &channelID,
		UserID:    message.SenderID,
		Data:      payload,
		Timestamp: time.Now(),
	}))
}

// Evict drops every connection of userID from the channel room and tells
// those connections why.
func (h *Hub) Evict(channelID, userID models.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	notice := encode(Frame{
		Type:      TypeChannelEvicted,
		ChannelID: &channelID,
		UserID:    userID,
		Timestamp: time.Now(),
	})
	for _, client := range h.userClients[userID] {
		if !client.IsInChannel(channelID) {
			continue
		}
		h.removeFromRoomUnsafe(client, channelID)
		h.trySend(client, notice)
	}
}

func (h *Hub) SendToUser(userID models.ID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.userClients[userID] {
		h.trySend(client, message)
	}
}

func (h *Hub) SendToRoom(channelID models.ID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.broadcastToRoomExcept(channelID, message, uuid.Nil)
}

func (h *Hub) broadcastToRoomExcept(channelID models.ID, message []byte, excludeID uuid.UUID) {
	for _, client := range h.rooms[channelID] {
		if client.ID != excludeID {
			h.trySend(client, message)
		}
	}
}

// closeSendUnsafe closes the client's queue once. Callers hold h.mu.
func (h *Hub) closeSendUnsafe(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	close(client.Send)
}

func (h *Hub) trySend(client *Client, message []byte) {
	if client.closed {
		return
	}
	select {
	case client.Send <- message:
	default:
		h.log.Warn("client send queue full", "client_id", client.ID)
	}
}

func (h *Hub) sendRoomUsers(client *Client, channelID models.ID) {
	data, err := json.Marshal(h.roomUsersUnsafe(channelID))
	if err != nil {
		return
	}
	h.trySend(client, encode(Frame{
		Type:      TypeChannelUsers,
		ChannelID: &channelID,
		UserID:    client.UserID,
		Data:      data,
		Timestamp: time.Now(),
	}))
}

func (h *Hub) notifyUserStatus(userID models.ID, status MessageType) {
	data := encode(Frame{Type: status, UserID: userID, Timestamp: time.Now()})
	for _, client := range h.clients {
		if client.UserID != userID {
			h.trySend(client, data)
		}
	}
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data := encode(Frame{Type: TypePing, Timestamp: time.Now()})
	for _, client := range h.clients {
		h.trySend(client, data)
	}
}

func (h *Hub) OnlineUsers() []models.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]models.ID, 0, len(h.userClients))
	for userID := range h.userClients {
		users = append(users, userID)
	}
	return users
}

// RoomUsers lists the users with at least one connection in the room.
func (h *Hub) RoomUsers(channelID models.ID) []models.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.roomUsersUnsafe(channelID)
}

func (h *Hub) roomUsersUnsafe(channelID models.ID) []models.ID {
	seen := make(map[models.ID]bool)
	users := make([]models.ID, 0)
	for _, client := range h.rooms[channelID] {
		if !seen[client.UserID] {
			seen[client.UserID] = true
			users = append(users, client.UserID)
		}
	}
	return users
}

func encode(f Frame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Error("encode frame", "type", f.Type, "err", err)
		return nil
	}
	return data
}
