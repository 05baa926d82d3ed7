package dto

import (
	"time"

	"github.com/thereayou/groupchat/internal/models"
)

type CreateGroupRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type UpdateGroupRequest struct {
	Name *string `json:"name" binding:"omitempty,min=1,max=100"`
}

type GroupResponse struct {
	ID           models.ID  `json:"id"`
	Name         string     `json:"name"`
	Admins       models.IDs `json:"admins"`
	Members      models.IDs `json:"members"`
	Channels     models.IDs `json:"channels"`
	JoinRequests models.IDs `json:"join_requests,omitempty"`
	CreatedBy    models.ID  `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

func Group(g *models.Group) GroupResponse {
	return GroupResponse{
		ID:           g.ID,
		Name:         g.Name,
		Admins:       nonNil(g.Admins),
		Members:      nonNil(g.Members),
		Channels:     nonNil(g.Channels),
		JoinRequests: g.JoinRequests,
		CreatedBy:    g.CreatedBy,
		CreatedAt:    g.CreatedAt,
	}
}

type CreateChannelRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type ResolveJoinRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

type ChannelResponse struct {
	ID           models.ID   `json:"id"`
	Name         string      `json:"name"`
	GroupID      models.ID   `json:"group_id"`
	Members      models.IDs  `json:"members"`
	JoinRequests models.IDs  `json:"join_requests,omitempty"`
	Blacklist    models.IDs  `json:"blacklist,omitempty"`
	OnlineUsers  []models.ID `json:"online_users,omitempty"`
	CreatedBy    models.ID   `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
}

func Channel(ch *models.Channel) ChannelResponse {
	return ChannelResponse{
		ID:           ch.ID,
		Name:         ch.Name,
		GroupID:      ch.GroupID,
		Members:      nonNil(ch.Members),
		JoinRequests: ch.JoinRequests,
		Blacklist:    ch.Blacklist,
		CreatedBy:    ch.CreatedBy,
		CreatedAt:    ch.CreatedAt,
	}
}

func nonNil(ids models.IDs) models.IDs {
	if ids == nil {
		return models.IDs{}
	}
	return ids
}
