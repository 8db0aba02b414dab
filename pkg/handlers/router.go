package handlers

import (
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/middleware"
	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every route onto a fresh engine.
func (h *Handlers) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	origins := []string{"http://localhost:3000"}
	if h.Config != nil && len(h.Config.CORSOrigins) > 0 {
		origins = h.Config.CORSOrigins
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", h.HealthCheck)

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", h.RegisterParent)
		authRoutes.POST("/login", h.LoginParent)
	}

	api := router.Group("/api")
	{
		api.GET("/characters", h.ListCharacters)
		api.GET("/characters/:id", h.GetCharacter)
		api.GET("/scenarios", h.ListScenarios)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(h.Tokens))
	{
		protected.GET("/children", h.ListChildren)
		protected.POST("/children", h.CreateChild)

		clipRoutes := protected.Group("/clips")
		{
			clipRoutes.GET("", h.ListClips)
			clipRoutes.POST("/generate", h.GenerateClip)
			clipRoutes.GET("/:id", h.GetClip)
			clipRoutes.GET("/:id/audio", h.ClipAudio)
			clipRoutes.POST("/:id/approve", h.ApproveClip)
			clipRoutes.GET("/:id/events", h.ClipEvents)
		}
	}
	return router
}
