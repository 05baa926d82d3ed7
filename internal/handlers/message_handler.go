package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/models"
	"github.com/thereayou/groupchat/internal/services"
	"github.com/thereayou/groupchat/internal/websocket"
)

type frameStore interface {
	IsChannelMember(ctx context.Context, channelID, userID models.ID) (bool, error)
	TouchLastSeen(ctx context.Context, id models.ID) error
}

// MessageHandler serves the frames a websocket client sends.
type MessageHandler struct {
	db      frameStore
	members *services.MembershipService
	hub     *websocket.Hub
}

func NewMessageHandler(db *database.Database, members *services.MembershipService, hub *websocket.Hub) *MessageHandler {
	return &MessageHandler{db: db, members: members, hub: hub}
}

func (h *MessageHandler) HandleFrame(client *websocket.Client, frame *websocket.Frame) error {
	switch frame.Type {
	case websocket.TypePing:
		return client.SendFrame(websocket.TypePong, nil, nil)

	case websocket.TypeChannelJoin:
		return h.handleJoin(client, frame)

	case websocket.TypeChannelLeave:
		channelID, err := frameChannel(frame)
		if err != nil {
			return err
		}
		h.hub.LeaveRoom(client, channelID)
		return nil

	case websocket.TypeMessage:
		return h.handleTextMessage(client, frame)

	default:
		slog.Debug("unknown frame type", "type", frame.Type, "client_id", client.ID)
		return websocket.ErrInvalidMessage
	}
}

// handleJoin subscribes the client to a channel room. Only current members
// may listen in.
func (h *MessageHandler) handleJoin(client *websocket.Client, frame *websocket.Frame) error {
	channelID, err := frameChannel(frame)
	if err != nil {
		return err
	}

	ok, err := h.db.IsChannelMember(client.Context(), channelID, client.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotMember
	}
	h.hub.JoinRoom(client, channelID)

	// An eviction landing before JoinRoom found nothing to evict. Checking
	// again once in the room catches it; later ones see the client.
	ok, err = h.db.IsChannelMember(client.Context(), channelID, client.UserID)
	if err != nil || !ok {
		h.hub.LeaveRoom(client, channelID)
	}
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotMember
	}
	return nil
}

func (h *MessageHandler) handleTextMessage(client *websocket.Client, frame *websocket.Frame) error {
	channelID, err := frameChannel(frame)
	if err != nil {
		return err
	}

	var payload websocket.MessagePayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return websocket.ErrInvalidMessage
	}
	switch payload.Kind {
	case "", models.KindText, models.KindImage:
	default:
		return websocket.ErrInvalidMessage
	}

	// PostMessage publishes through the hub on success
	_, err = h.members.PostMessage(client.Context(), channelID, client.UserID, payload.Content, payload.Kind)
	if err != nil {
		return err
	}

	go func() {
		if err := h.db.TouchLastSeen(client.Context(), client.UserID); err != nil {
			slog.Warn("touch last seen", "user_id", client.UserID, "err", err)
		}
	}()
	return nil
}

func frameChannel(frame *websocket.Frame) (models.ID, error) {
	if frame.ChannelID == nil {
		return "", websocket.ErrInvalidMessage
	}
	return models.ParseID(frame.ChannelID.String())
}
