package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/thereayou/groupchat/internal/cache"
	"github.com/thereayou/groupchat/internal/handlers"
	"github.com/thereayou/groupchat/internal/middleware"
	"github.com/thereayou/groupchat/internal/models"
)

func NewRouter(s *Server, users *cache.Users) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	authH := handlers.NewAuthHandler(s.DB, s.JWTManager, s.Redis)
	userH := handlers.NewUserHandler(s.DB, s.Members, users)
	groupH := handlers.NewGroupHandler(s.DB, s.Members)
	channelH := handlers.NewChannelHandler(s.DB, s.Members, s.Hub)
	messageH := handlers.NewHTTPMessageHandler(s.DB, s.Members, users)
	wsH := handlers.NewWebSocketHandler(s.Hub, handlers.NewMessageHandler(s.DB, s.Members, s.Hub), s.cfg.CORSOrigins)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Auth endpoints
	auth := r.Group("/auth")
	{
		auth.POST("/register", authH.Register)
		auth.POST("/login", authH.Login)
		auth.POST("/logout", middleware.AuthMiddleware(s.JWTManager, s.Redis), authH.Logout)
	}

	r.GET("/ws", middleware.WSAuthMiddleware(s.JWTManager, s.Redis), wsH.HandleWebSocket)

	api := r.Group("/api/v1", middleware.AuthMiddleware(s.JWTManager, s.Redis))
	{
		api.GET("/users/me", userH.GetMe)
		api.PATCH("/users/me", userH.UpdateMe)
		api.DELETE("/users/me", userH.DeleteMe)
		api.GET("/users/:id", userH.GetUser)
		api.GET("/users/lookup/:username", userH.LookupUser)

		admin := api.Group("/users", middleware.RequireRole(s.DB, models.RoleSuperAdmin))
		{
			admin.GET("", userH.ListUsers)
			admin.POST("", userH.CreateUser)
			admin.POST("/:id/validate", userH.ValidateUser)
			admin.POST("/:id/roles", userH.PromoteUser)
			admin.DELETE("/:id", userH.DeleteUser)
		}

		groups := api.Group("/groups")
		{
			groups.POST("", groupH.CreateGroup)
			groups.GET("", groupH.ListGroups)
			groups.GET("/mine", groupH.MyGroups)
			groups.GET("/:id", groupH.GetGroup)
			groups.PATCH("/:id", groupH.UpdateGroup)
			groups.DELETE("/:id", groupH.DeleteGroup)
			groups.POST("/:id/join", groupH.RequestJoin)
			groups.POST("/:id/leave", groupH.Leave)
			groups.POST("/:id/requests/:userId/approve", groupH.ApproveJoin)
			groups.POST("/:id/requests/:userId/reject", groupH.RejectJoin)
			groups.POST("/:id/admins/:userId", groupH.AddAdmin)
			groups.DELETE("/:id/admins/:userId", groupH.RemoveAdmin)
			groups.DELETE("/:id/members/:userId", groupH.RemoveMember)
			groups.POST("/:id/channels", groupH.CreateChannel)
			groups.GET("/:id/channels", groupH.ListChannels)
		}

		channels := api.Group("/channels")
		{
			channels.GET("/:id", channelH.GetChannel)
			channels.DELETE("/:id", channelH.DeleteChannel)
			channels.POST("/:id/join", channelH.RequestJoin)
			channels.POST("/:id/requests/:userId", channelH.ResolveJoin)
			channels.POST("/:id/bans/:userId", channelH.Ban)
			channels.DELETE("/:id/members/:userId", channelH.RemoveMember)
			channels.GET("/:id/messages", messageH.GetChannelMessages)
			channels.POST("/:id/messages", messageH.SendMessage)
			channels.GET("/:id/messages/export", messageH.ExportChannelMessages)
		}
	}

	return r
}
