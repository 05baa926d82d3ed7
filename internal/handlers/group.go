package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/handlers/dto"
	"github.com/thereayou/groupchat/internal/middleware"
	"github.com/thereayou/groupchat/internal/models"
	"github.com/thereayou/groupchat/internal/services"
)

type GroupHandler struct {
	db      *database.Database
	members *services.MembershipService
}

func NewGroupHandler(db *database.Database, members *services.MembershipService) *GroupHandler {
	return &GroupHandler{db: db, members: members}
}

// requireAdmin answers 403 unless the caller is a group admin or SuperAdmin.
func requireAdmin(c *gin.Context, check func(ctx context.Context, callerID, id models.ID) (bool, error), id models.ID) bool {
	ok, err := check(c.Request.Context(), middleware.CurrentUserID(c), id)
	if err != nil {
		respondError(c, err)
		return false
	}
	if !ok {
		respondError(c, models.ErrForbidden)
		return false
	}
	return true
}

// idAndUser parses the :id and :userId path parameters.
func idAndUser(c *gin.Context) (models.ID, models.ID, bool) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return "", "", false
	}
	userID, ok := paramID(c, "userId")
	if !ok {
		return "", "", false
	}
	return groupID, userID, true
}

func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req dto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.members.CreateGroup(c.Request.Context(), middleware.CurrentUserID(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Group(group))
}

func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.db.ListGroups(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groupList(groups)})
}

// MyGroups lists the groups the caller belongs to or has asked to join.
func (h *GroupHandler) MyGroups(c *gin.Context) {
	groups, err := h.db.ListGroupsForUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groupList(groups)})
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	group, err := h.db.GetGroup(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Group(group))
}

func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok || !requireAdmin(c, h.members.CanAdministerGroup, id) {
		return
	}

	var req dto.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}

	ctx := c.Request.Context()
	matched, err := h.db.UpdateGroup(ctx, id, database.GroupPatch{Name: req.Name})
	if err != nil {
		respondError(c, err)
		return
	}
	if matched == 0 {
		respondError(c, models.ErrGroupNotFound)
		return
	}

	group, err := h.db.GetGroup(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Group(group))
}

func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok || !requireAdmin(c, h.members.CanAdministerGroup, id) {
		return
	}
	if err := h.members.DeleteGroup(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) RequestJoin(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.members.RequestJoinGroup(c.Request.Context(), id, middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *GroupHandler) ApproveJoin(c *gin.Context) {
	groupID, userID, ok := idAndUser(c)
	if !ok || !requireAdmin(c, h.members.CanAdministerGroup, groupID) {
		return
	}
	if err := h.members.ApproveGroupJoin(c.Request.Context(), groupID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) RejectJoin(c *gin.Context) {
	groupID, userID, ok := idAndUser(c)
	if !ok || !requireAdmin(c, h.members.CanAdministerGroup, groupID) {
		return
	}
	if err := h.members.RejectGroupJoin(c.Request.Context(), groupID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) AddAdmin(c *gin.Context) {
	groupID, userID, ok := idAndUser(c)
	if !ok || !requireAdmin(c, h.members.CanAdministerGroup, groupID) {
		return
	}
	if err := h.members.AddGroupAdmin(c.Request.Context(), groupID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) RemoveAdmin(c *gin.Context) {
	groupID, userID, ok := idAndUser(c)
	if !ok || !requireAdmin(c, h.members.CanAdministerGroup, groupID) {
		return
	}
	if err := h.members.RemoveGroupAdmin(c.Request.Context(), groupID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, userID, ok := idAndUser(c)
	if !ok || !requireAdmin(c, h.members.CanAdministerGroup, groupID) {
		return
	}
	if err := h.members.RemoveMemberFromGroup(c.Request.Context(), groupID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) Leave(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.members.LeaveGroup(c.Request.Context(), middleware.CurrentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) CreateChannel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel, err := h.members.CreateChannel(c.Request.Context(), middleware.CurrentUserID(c), id, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.Channel(channel))
}

func (h *GroupHandler) ListChannels(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.db.GetGroup(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	channels, err := h.db.ListChannelsByGroup(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]dto.ChannelResponse, len(channels))
	for i := range channels {
		result[i] = dto.Channel(&channels[i])
	}
	c.JSON(http.StatusOK, gin.H{"channels": result})
}

func groupList(groups []models.Group) []dto.GroupResponse {
	result := make([]dto.GroupResponse, len(groups))
	for i := range groups {
		result[i] = dto.Group(&groups[i])
	}
	return result
}
