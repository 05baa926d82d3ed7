package dto

import (
	"time"

	"github.com/thereayou/groupchat/internal/models"
)

type SendMessageRequest struct {
	Content string             `json:"content" binding:"required"`
	Kind    models.MessageKind `json:"kind" binding:"omitempty,oneof=text image"`
}

type MessageResponse struct {
	Seq            uint64             `json:"seq"`
	ChannelID      models.ID          `json:"channel_id"`
	SenderID       models.ID          `json:"sender_id"`
	SenderUsername string             `json:"sender_username,omitempty"`
	Content        string             `json:"content"`
	Kind           models.MessageKind `json:"kind"`
	CreatedAt      time.Time          `json:"created_at"`
}

func Message(m *models.Message) MessageResponse {
	return MessageResponse{
		Seq:       m.Seq,
		ChannelID: m.ChannelID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Kind:      m.Kind,
		CreatedAt: m.CreatedAt,
	}
}
