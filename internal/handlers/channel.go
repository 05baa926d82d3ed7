package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/handlers/dto"
	"github.com/thereayou/groupchat/internal/middleware"
	"github.com/thereayou/groupchat/internal/services"
	"github.com/thereayou/groupchat/internal/websocket"
)

type ChannelHandler struct {
	db      *database.Database
	members *services.MembershipService
	hub     *websocket.Hub
}

func NewChannelHandler(db *database.Database, members *services.MembershipService, hub *websocket.Hub) *ChannelHandler {
	return &ChannelHandler{db: db, members: members, hub: hub}
}

func (h *ChannelHandler) GetChannel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	channel, err := h.db.GetChannel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.Channel(channel)
	response.OnlineUsers = h.hub.RoomUsers(channel.ID)
	c.JSON(http.StatusOK, response)
}

func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok || !requireAdmin(c, h.members.CanAdministerChannel, id) {
		return
	}
	if err := h.members.DeleteChannel(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChannelHandler) RequestJoin(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.members.RequestJoinChannel(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ResolveJoin approves or rejects a pending request depending on the
// "approve" flag of the body.
func (h *ChannelHandler) ResolveJoin(c *gin.Context) {
	channelID, userID, ok := idAndUser(c)
	if !ok || !requireAdmin(c, h.members.CanAdministerChannel, channelID) {
		return
	}
	var req dto.ResolveJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.members.ResolveChannelJoin(c.Request.Context(), channelID, userID, *req.Approve); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChannelHandler) Ban(c *gin.Context) {
	channelID, userID, ok := idAndUser(c)
	if !ok || !requireAdmin(c, h.members.CanAdministerChannel, channelID) {
		return
	}
	if err := h.members.BanFromChannel(c.Request.Context(), channelID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember lets a member leave a channel, or an admin remove anyone.
func (h *ChannelHandler) RemoveMember(c *gin.Context) {
	channelID, userID, ok := idAndUser(c)
	if !ok {
		return
	}
	if userID != middleware.CurrentUserID(c) && !requireAdmin(c, h.members.CanAdministerChannel, channelID) {
		return
	}

	removed, err := h.members.RemoveFromChannel(c.Request.Context(), channelID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
