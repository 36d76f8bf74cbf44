package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"meggy/backend/internal/handler"
	"meggy/backend/internal/middleware"
	"meggy/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	timerHandler *handler.TimerHandler,
	eventsHandler *handler.EventsHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	timers := api.Group("/timers")
	timers.Use(middleware.Auth(authService))
	timers.POST("", timerHandler.Create)
	timers.GET("/active", timerHandler.ListActive)
	timers.POST("/cancel_all", timerHandler.CancelAll)
	timers.GET("/:id", timerHandler.Get)
	timers.POST("/:id/pause", timerHandler.Pause)
	timers.POST("/:id/resume", timerHandler.Resume)
	timers.POST("/:id/cancel", timerHandler.Cancel)

	events := api.Group("/events")
	events.Use(middleware.Auth(authService))
	events.GET("", eventsHandler.Stream)

	return engine
}
