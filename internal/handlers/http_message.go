package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/groupchat/internal/cache"
	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/handlers/dto"
	"github.com/thereayou/groupchat/internal/middleware"
	"github.com/thereayou/groupchat/internal/models"
	"github.com/thereayou/groupchat/internal/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type HTTPMessageHandler struct {
	db      *database.Database
	members *services.MembershipService
	cache   *cache.Users
}

func NewHTTPMessageHandler(db *database.Database, members *services.MembershipService, users *cache.Users) *HTTPMessageHandler {
	return &HTTPMessageHandler{db: db, members: members, cache: users}
}

// GetChannelMessages pages backwards through a channel's log. Only members
// and administrators of the owning group may read it.
func (h *HTTPMessageHandler) GetChannelMessages(c *gin.Context) {
	channelID, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	callerID := middleware.CurrentUserID(c)

	channel, err := h.db.GetChannel(ctx, channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !channel.IsMember(callerID) && !requireAdmin(c, h.members.CanAdministerChannel, channelID) {
		return
	}

	// Oversized pages are clamped rather than refused.
	limit := defaultPageSize
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxPageSize)
	}

	var before uint64
	if b := c.Query("before"); b != "" {
		parsed, err := strconv.ParseUint(b, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		before = parsed
	}

	messages, err := h.db.RecentMessages(ctx, channelID, limit, before)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]dto.MessageResponse, len(messages))
	for i := range messages {
		result[i] = h.format(c, &messages[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": result,
		"has_more": len(messages) == limit,
	})
}

// ExportChannelMessages streams the whole channel log, oldest first, as
// newline-delimited JSON.
func (h *HTTPMessageHandler) ExportChannelMessages(c *gin.Context) {
	channelID, ok := paramID(c, "id")
	if !ok || !requireAdmin(c, h.members.CanAdministerChannel, channelID) {
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	for message, err := range h.db.ChatHistory(c.Request.Context(), channelID) {
		if err != nil {
			// headers are already out; cut the stream short
			slog.Error("export channel history", "channel_id", channelID, "err", err)
			return
		}
		if err := enc.Encode(dto.Message(&message)); err != nil {
			return
		}
	}
}

// SendMessage is the HTTP alternative to a websocket message frame.
func (h *HTTPMessageHandler) SendMessage(c *gin.Context) {
	channelID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.members.PostMessage(c.Request.Context(), channelID, middleware.CurrentUserID(c), req.Content, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.format(c, message))
}

func (h *HTTPMessageHandler) format(c *gin.Context, m *models.Message) dto.MessageResponse {
	response := dto.Message(m)
	// a deleted sender keeps its messages but loses its name
	if name, err := h.cache.Username(c.Request.Context(), m.SenderID, h.db); err == nil {
		response.SenderUsername = name
	}
	return response
}
