package server

import (
	"time"

	httpHandler "social-publisher/interfaces/http"
	"social-publisher/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Connection httpHandler.IConnectionHandler
	Publish    httpHandler.IPublishHandler
	Health     httpHandler.IHealthHandler
}

func InitiateRouter(h Handlers, secretKey string, allowOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	auth := middleware.Auth(secretKey)

	router.POST("/healthz", h.Health.Healthz)

	// OAuth: starting a connection needs the caller, the provider callback
	// is identified by its state parameter.
	router.GET("/auth/:platform", auth, h.Connection.Connect)
	router.GET("/auth/:platform/callback", h.Connection.Callback)

	api := router.Group("api")
	api.Use(auth)
	{
		api.GET("/connections", h.Connection.List)
		api.DELETE("/connections/:platform", h.Connection.Disconnect)
		api.POST("/connections/:platform/simulated", h.Connection.ConnectSimulated)

		api.POST("/publish", h.Publish.Publish)
		api.GET("/publish/stream", h.Publish.Stream)
		api.GET("/publish/history", h.Publish.History)
		api.GET("/publish/:runId/progress", h.Publish.Progress)
	}
	return router
}
