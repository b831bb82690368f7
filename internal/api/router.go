package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lalith-99/agencychat/internal/middleware"
	"github.com/lalith-99/agencychat/internal/models"
	"github.com/lalith-99/agencychat/internal/realtime"
	"github.com/lalith-99/agencychat/internal/repository"
)

// ChatService is everything the transport needs from the chat core.
// *chat.Service satisfies it.
type ChatService interface {
	ChannelService
	MessageService
	ResolveDM(ctx context.Context, userID uuid.UUID, directTo []uuid.UUID, name string) (*models.Channel, bool, error)
}

type RouterConfig struct {
	Chat   ChatService
	Users  repository.UserRepository
	Store  repository.Pinger
	Hub    *realtime.Hub
	Logger *zap.Logger

	// JWTSecret enables bearer auth on /v1 when non-empty.
	JWTSecret         string
	SocketErrorEvents bool
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(cfg.Logger), middleware.Metrics())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	// Public: load balancers and scrapers carry no token.
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/v1/health", Health(cfg.Store, cfg.Logger))

	channels := NewChannelHandler(cfg.Chat, cfg.Logger)
	messages := NewMessageHandler(cfg.Chat, cfg.Logger)
	users := NewUserHandler(cfg.Users, cfg.Logger)
	socket := NewSocketHandler(cfg.Hub, cfg.Chat, cfg.Logger, cfg.SocketErrorEvents)

	v1 := r.Group("/v1")
	if cfg.JWTSecret != "" {
		v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	}

	v1.GET("/channels", channels.List)
	v1.POST("/channels", channels.Create)
	v1.GET("/channels/:id/members", channels.Members)
	v1.GET("/channels/:id/messages", messages.List)
	v1.POST("/channels/:id/messages", messages.Create)

	v1.POST("/users", users.Create)
	v1.GET("/users/:id", users.Get)

	v1.GET("/ws", socket.Serve)

	return r
}
