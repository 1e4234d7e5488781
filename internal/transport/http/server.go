package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"bookplatform/internal/bootstrap"
	mysqlClient "bookplatform/internal/platform/mysql"
	"bookplatform/internal/transport/http/handler"
	"bookplatform/internal/transport/http/middleware"
)

var errConnectionClosed = errors.New("connection closed")

// Handlers groups the HTTP handlers mounted by the router.
type Handlers struct {
	Auth        *handler.AuthHandler
	Chapter     *handler.ChapterHandler
	Chat        *handler.ChatHandler
	Personalize *handler.PersonalizeHandler
	Health      *handler.HealthHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)

	h := Handlers{
		Auth:        handler.NewAuthHandler(app.Services.Auth),
		Chapter:     handler.NewChapterHandler(app.Services.Chapters),
		Chat:        handler.NewChatHandler(app.Services.Chat, app.Config.RAG.MaxChatContextMessage),
		Personalize: handler.NewPersonalizeHandler(app.Services.Personalization),
		Health: handler.NewHealthHandler(handler.HealthOptions{
			Name:      app.Config.App.Name,
			Env:       app.Config.App.Env,
			StartedAt: app.StartedAt,
			Checks: map[string]handler.Check{
				"mysql": func(ctx context.Context) error { return mysqlClient.Ping(ctx, app.MySQL) },
				"redis": func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() },
				"rabbitmq": func(context.Context) error {
					if app.MQConn == nil || app.MQConn.IsClosed() {
						return errConnectionClosed
					}
					return nil
				},
			},
			Store:     app.RAG.Store,
			Ingestor:  app.RAG.Ingestor,
			Assistant: app.RAG.Assistant,
		}),
	}

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.AccessLog(app.Logger.With("component", "http")), gin.Recovery())
	registerRoutes(router, h, app.Config.Auth.JWTSecret)
	return router
}

func registerRoutes(router *gin.Engine, h Handlers, jwtSecret string) {
	router.GET("/healthz", h.Health.Check)

	auth := middleware.AuthJWT(jwtSecret)
	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.GET("/me", auth, h.Auth.Me)

	v1.GET("/chapters", h.Chapter.List)
	v1.GET("/chapters/:id", h.Chapter.Get)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(auth)
	chatGroup.POST("/sessions", h.Chat.CreateSession)
	chatGroup.GET("/sessions", h.Chat.ListSessions)
	chatGroup.DELETE("/sessions/:id", h.Chat.DeleteSession)
	chatGroup.POST("/messages", h.Chat.SendMessage)
	chatGroup.GET("/history", h.Chat.GetHistory)

	v1.POST("/personalize", auth, h.Personalize.Personalize)
	v1.POST("/translate", auth, h.Personalize.Translate)
}
