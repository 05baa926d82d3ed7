package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/thereayou/groupchat/internal/cache"
	"github.com/thereayou/groupchat/internal/config"
	"github.com/thereayou/groupchat/internal/database"
	"github.com/thereayou/groupchat/internal/services"
	"github.com/thereayou/groupchat/internal/websocket"
	"github.com/thereayou/groupchat/pkg/auth"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg        *config.Config
	Router     *gin.Engine
	DB         *database.Database
	Redis      *redis.Client
	Hub        *websocket.Hub
	JWTManager *auth.JWTManager
	Members    *services.MembershipService
}

// NewServer connects to the database and Redis and wires the API.
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connect: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	return newServer(cfg, db, rdb), nil
}

func newServer(cfg *config.Config, db *database.Database, rdb *redis.Client) *Server {
	hub := websocket.NewHub()
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	users := cache.NewUsers(rdb, cfg.UserCacheTTL)
	members := services.NewMembershipService(db, db, db, hub, users)

	s := &Server{
		cfg:        cfg,
		DB:         db,
		Redis:      rdb,
		Hub:        hub,
		JWTManager: jwtMgr,
		Members:    members,
	}
	s.Router = NewRouter(s, users)
	return s
}

// Run serves HTTP until ctx is cancelled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	go s.Hub.Run()

	httpSrv := &http.Server{
		Addr:    ":" + s.cfg.Port,
		Handler: s.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", s.cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.close()
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpSrv.Shutdown(shutdownCtx)
	s.close()
	return err
}

func (s *Server) close() {
	s.Hub.Stop()
	if err := s.Redis.Close(); err != nil {
		slog.Warn("close redis", "err", err)
	}
	if err := s.DB.Close(); err != nil {
		slog.Warn("close database", "err", err)
	}
}
