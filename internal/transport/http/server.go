package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/auth"
	"github.com/parleyhq/parley-server/internal/config"
	"github.com/parleyhq/parley-server/internal/core"
	"github.com/parleyhq/parley-server/internal/log"
	"github.com/parleyhq/parley-server/internal/metrics"
	"github.com/parleyhq/parley-server/internal/service/messages"
	"github.com/parleyhq/parley-server/internal/service/posts"
	"github.com/parleyhq/parley-server/internal/store"
	"github.com/parleyhq/parley-server/internal/upload"
)

// Deps holds everything the HTTP layer routes to.
type Deps struct {
	Hub      *core.Hub
	Auth     *auth.Service
	Messages *messages.Service
	Posts    *posts.Service
	Store    store.Store
	Uploads  *upload.Store
	Metrics  *metrics.Metrics
	Config   *config.Config
	Logger   *zerolog.Logger
}

// NewServer builds an HTTP server with all routes.
func NewServer(deps Deps) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              deps.Config.Addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: deps.Config.ReadHeaderTimeout,
	}
}

// NewRouter wires the gin engine.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = log.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(MetricsMiddleware(deps.Metrics))

	router.GET("/health", healthHandler)
	if deps.Config.MetricsEnabled && deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.GET("/ws", gin.WrapH(NewWSHandler(deps.Hub, deps.Auth, deps.Config, logger)))
	if deps.Uploads != nil {
		router.Static("/uploads/messages", deps.Uploads.Dir())
	}

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	userHandlers := NewUserHandlers(deps.Store, logger)
	messageHandlers := NewMessageHandlers(deps.Messages, deps.Uploads, deps.Config, logger)
	postHandlers := NewPostHandlers(deps.Posts, logger)
	requireAuth := AuthMiddleware(deps.Auth, logger)

	api := router.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", apiHandlers.Register)
		authGroup.POST("/login", apiHandlers.Login)
		authGroup.POST("/logout", apiHandlers.Logout)
		authGroup.GET("/me", requireAuth, apiHandlers.Me)

		users := api.Group("/users", requireAuth)
		users.GET("/search", userHandlers.SearchUsers)

		msgs := api.Group("/messages", requireAuth)
		msgs.POST("", messageHandlers.Send)
		msgs.GET("/inbox", messageHandlers.Inbox)
		msgs.GET("/unread/count", messageHandlers.UnreadCount)
		msgs.GET("/conversations", messageHandlers.Conversations)
		msgs.GET("/conversations/:userId", messageHandlers.Conversation)
		msgs.PATCH("/conversations/:userId/read", messageHandlers.MarkConversationRead)
		msgs.PATCH("/:id/read", messageHandlers.MarkRead)
		msgs.PUT("/:id", messageHandlers.Edit)
		msgs.DELETE("/:id", messageHandlers.Delete)

		postGroup := api.Group("/posts")
		postGroup.GET("", postHandlers.List)
		postGroup.GET("/:id", postHandlers.Get)
		postGroup.POST("", requireAuth, postHandlers.Create)
		postGroup.PUT("/:id", requireAuth, postHandlers.Update)
		postGroup.DELETE("/:id", requireAuth, postHandlers.Delete)
		postGroup.PATCH("/:id/like", requireAuth, postHandlers.ToggleLike)
		postGroup.POST("/:id/comment", requireAuth, postHandlers.AddComment)
		postGroup.POST("/:id/comment/:commentId/reply", requireAuth, postHandlers.Reply)
		postGroup.PATCH("/:id/comment/:commentId/reply/:replyId", requireAuth, postHandlers.UpdateReply)
		postGroup.DELETE("/:id/comment/:commentId/reply/:replyId", requireAuth, postHandlers.DeleteReply)

		api.GET("/notifications", requireAuth, postHandlers.Notifications)
	}

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
