package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/handler"
	"github.com/stemsi/exstem-runner/internal/middleware"
	"github.com/stemsi/exstem-runner/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session    *handler.SessionHandler
	Annotation *handler.AnnotationHandler
	WS         *handler.WSHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// credentials receives the bearer token of every session request before the
// handler runs; limiter guards session bootstrap and may be nil.
func SetupRouter(
	handlers *Handlers,
	credentials middleware.CredentialSink,
	limiter *middleware.RateLimiter,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// SSE streams flush per event and are left uncompressed.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper: func(c *gin.Context) bool {
			return c.FullPath() == "/api/v1/system/metrics"
		},
	}))

	// Health check.
	router.GET("/health", handlers.System.Health)
	router.GET("/api/v1/system/metrics", handlers.System.RuntimeMetricsSSE)

	// ─── 1. Session Group (forwarded credential, never cached) ─────────
	sessions := router.Group("/api/v1/sessions")
	sessions.Use(middleware.NoStore(), middleware.ForwardCredential(credentials))
	{
		start := []gin.HandlerFunc{handlers.Session.StartSession}
		if limiter != nil {
			start = append([]gin.HandlerFunc{limiter.Middleware()}, start...)
		}
		sessions.POST("", start...)

		sessions.GET("/:session_id", handlers.Session.GetView)
		sessions.POST("/:session_id/navigate", handlers.Session.Navigate)
		sessions.POST("/:session_id/next", handlers.Session.Next)
		sessions.POST("/:session_id/previous", handlers.Session.Previous)
		sessions.POST("/:session_id/answer", handlers.Session.SelectAnswer)
		sessions.POST("/:session_id/actions", handlers.Session.RecordAction)
		sessions.PUT("/:session_id/note", handlers.Session.SaveNote)
		sessions.POST("/:session_id/explanation", handlers.Session.ToggleExplanation)
		sessions.PUT("/:session_id/timer", handlers.Session.ConfigureTimer)
		sessions.POST("/:session_id/end", handlers.Session.EndTest)
		sessions.POST("/:session_id/cancel", handlers.Session.CancelSession)
		sessions.GET("/:session_id/results", handlers.Session.GetResults)

		// Annotations
		sessions.POST("/:session_id/highlights", handlers.Annotation.AddHighlight)
		sessions.DELETE("/:session_id/highlights/:key", handlers.Annotation.RemoveHighlight)
		sessions.POST("/:session_id/strikes", handlers.Annotation.ToggleStrike)
	}

	// ─── 2. WebSocket Group ────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.ForwardCredential(credentials))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	return router
}
