package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/horoquiz/horoquiz-backend/internal/config"
	"github.com/horoquiz/horoquiz-backend/internal/handler"
	"github.com/horoquiz/horoquiz-backend/internal/middleware"
	"github.com/horoquiz/horoquiz-backend/internal/response"
	"github.com/horoquiz/horoquiz-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Quiz    *handler.QuizHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Session creation is the expensive public surface; keep it behind a
	// per-IP limiter alongside the rest of the teacher API.
	apiLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 1. Teacher API (JWT) ──────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(apiLimiter.Middleware(), middleware.RequireTeacherJWT(authService))
	{
		api.GET("/quizzes", handlers.Quiz.GetAll)
		api.POST("/quizzes", handlers.Quiz.Create)
		api.GET("/quizzes/:id", handlers.Quiz.GetByID)
		api.PUT("/quizzes/:id", handlers.Quiz.Update)
		api.POST("/quizzes/:id/publish", handlers.Quiz.Publish)
		api.DELETE("/quizzes/:id", handlers.Quiz.Delete)

		api.GET("/sessions", handlers.Session.GetAll)
		api.POST("/sessions", handlers.Session.Create)
		api.GET("/sessions/:id", handlers.Session.GetByID)
		api.GET("/sessions/:id/results", handlers.Session.Results)
	}

	// ─── 2. WebSocket Group (open; roles negotiated via join_room) ─────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/sessions/:room_code", handlers.WS.SessionStream)
	}

	return router
}
