package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/handlers/dto"
	"github.com/thereayou/groupchat/internal/middleware"
	"github.com/thereayou/groupchat/internal/models"
	"github.com/thereayou/groupchat/pkg/auth"
)

type AuthHandler struct {
	db         *database.Database
	jwtManager *auth.JWTManager
	redis      *redis.Client
}

func NewAuthHandler(db *database.Database, jwtMgr *auth.JWTManager, rdb *redis.Client) *AuthHandler {
	return &AuthHandler{db: db, jwtManager: jwtMgr, redis: rdb}
}

// Register creates a pending account. A SuperAdmin has to validate it
// before it can log in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := newUser(req)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.db.CreateUser(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	c.JSON(http.StatusCreated, dto.RegisterResponse{ID: user.ID.String(), Valid: user.Valid})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	user, err := h.db.FindUserByEmail(ctx, req.Email)
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.Valid {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrUnvalidated.Error()})
		return
	}

	if err := h.db.TouchLastSeen(ctx, user.ID); err != nil {
		respondError(c, err)
		return
	}

	token, expires, err := h.jwtManager.Generate(user.ID.String(), user.Username)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		UserID:         user.ID.String(),
		Token:          token,
		TokenExpiresAt: expires,
	})
}

// Logout blacklists the token in Redis until it would have expired anyway.
func (h *AuthHandler) Logout(c *gin.Context) {
	rawToken, err := auth.ExtractTokenFromHeader(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	exp, err := h.jwtManager.Expiry(rawToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ttl := time.Until(exp)
	if ttl <= 0 {
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.redis.Set(c.Request.Context(), middleware.BlacklistKey(rawToken), 1, ttl).Err(); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func newUser(req dto.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}, nil
}
