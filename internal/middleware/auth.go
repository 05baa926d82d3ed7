package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/thereayou/groupchat/internal/models"
	"github.com/thereayou/groupchat/pkg/auth"
)

const (
	UserIDKey       = "userID"
	blacklistPrefix = "blacklist:"
)

// BlacklistKey is the Redis key marking a revoked token.
func BlacklistKey(token string) string {
	return blacklistPrefix + token
}

// AuthMiddleware validates the bearer token and stores the caller id.
func AuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		authenticate(c, jwtManager, redisClient, token)
	}
}

// WSAuthMiddleware also accepts the token as a query parameter, since
// browsers cannot set headers on a websocket upgrade.
func WSAuthMiddleware(jwtManager *auth.JWTManager, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
				token = parts[1]
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		authenticate(c, jwtManager, redisClient, token)
	}
}

func authenticate(c *gin.Context, jwtManager *auth.JWTManager, redisClient *redis.Client, token string) {
	exists, err := redisClient.Exists(c.Request.Context(), BlacklistKey(token)).Result()
	if err != nil || exists > 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is blacklisted"})
		return
	}

	claims, err := jwtManager.Verify(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	userID, err := models.ParseID(claims.Subject)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	c.Set(UserIDKey, userID)
	c.Next()
}

// CurrentUserID returns the caller id stored by AuthMiddleware.
func CurrentUserID(c *gin.Context) models.ID {
	return c.MustGet(UserIDKey).(models.ID)
}

type UserGetter interface {
	GetUser(ctx context.Context, id models.ID) (*models.User, error)
}

// RequireRole rejects callers whose account lacks role.
func RequireRole(users UserGetter, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.GetUser(c.Request.Context(), CurrentUserID(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		if !user.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires role " + string(role)})
			return
		}
		c.Next()
	}
}
