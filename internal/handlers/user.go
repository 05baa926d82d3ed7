package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/groupchat/internal/cache"
	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/handlers/dto"
	"github.com/thereayou/groupchat/internal/middleware"
	"github.com/thereayou/groupchat/internal/models"
	"github.com/thereayou/groupchat/internal/services"
)

type UserHandler struct {
	db      *database.Database
	members *services.MembershipService
	cache   *cache.Users
}

func NewUserHandler(db *database.Database, members *services.MembershipService, users *cache.Users) *UserHandler {
	return &UserHandler{db: db, members: members, cache: users}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.db.GetUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PrivateUser(user))
}

// UpdateMe changes the caller's username or avatar. Empty fields are left
// as they are.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req dto.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.db.UpdateProfile(ctx, middleware.CurrentUserID(c), req.Username, req.AvatarURL)
	if err != nil {
		respondError(c, err)
		return
	}
	h.cache.Put(ctx, user.ID, user.Username)

	c.JSON(http.StatusOK, dto.PrivateUser(user))
}

// DeleteMe removes the caller's account along with every membership.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	if err := h.members.DeleteUser(c.Request.Context(), middleware.CurrentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := h.db.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PublicUser(user))
}

func (h *UserHandler) LookupUser(c *gin.Context) {
	user, err := h.db.GetUserByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PublicUser(user))
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.db.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	result := make([]dto.UserResponse, len(users))
	for i := range users {
		result[i] = dto.PrivateUser(&users[i])
	}
	c.JSON(http.StatusOK, gin.H{"users": result})
}

// CreateUser provisions an already validated account.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := newUser(req.RegisterRequest)
	if err != nil {
		respondError(c, err)
		return
	}
	user.Valid = true
	for _, raw := range req.Roles {
		role, ok := models.ParseRole(string(raw))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role " + string(raw)})
			return
		}
		_ = user.AddRole(role)
	}
	if !user.HasRole(models.RoleChatUser) {
		user.Roles = append([]models.Role{models.RoleChatUser}, user.Roles...)
	}

	if err := h.db.CreateUser(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.PrivateUser(user))
}

func (h *UserHandler) ValidateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.members.ValidateUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) PromoteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, known := models.ParseRole(req.Role)
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role " + req.Role})
		return
	}

	if err := h.members.PromoteUser(c.Request.Context(), id, role); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.members.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
