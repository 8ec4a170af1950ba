package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/neetpg/battle-backend/internal/handler"
	"github.com/neetpg/battle-backend/internal/metrics"
	"github.com/neetpg/battle-backend/internal/middleware"
	"github.com/neetpg/battle-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Battle *handler.BattleHandler
	WS     *handler.WSHandler
	System *handler.SystemHandler
}

// Options carries the cross-cutting pieces the routes need.
type Options struct {
	GinMode        string
	AllowedOrigins []string
	Auth           middleware.TokenValidator
	StartLimiter   *middleware.RateLimiter
	Metrics        *metrics.Metrics
	// MetricsGauges refreshes gauges right before each scrape.
	MetricsGauges func()
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, opts Options) *gin.Engine {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set, restrict to that list; otherwise allow all.
	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.RequestMiddleware(opts.Metrics))

	router.GET("/health", handlers.System.Health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler(opts.MetricsGauges)))
	}

	// ─── 1. Battle Group (Public) ──────────────────────────────────────
	battle := router.Group("/battle")
	{
		start := []gin.HandlerFunc{handlers.Battle.StartBattle}
		if opts.StartLimiter != nil {
			start = append([]gin.HandlerFunc{opts.StartLimiter.Middleware()}, start...)
		}
		battle.POST("/start/:battle_id", start...)
		battle.POST("/get_stats", handlers.Battle.GetStats)
		battle.POST("/leaderboard", handlers.Battle.GetLeaderboard)
	}

	// ─── 2. Operator Group (Operator JWT) ──────────────────────────────
	operator := router.Group("/battle")
	operator.Use(middleware.RequireOperatorJWT(opts.Auth))
	{
		operator.POST("/cancel/:battle_id", handlers.Battle.CancelBattle)
		operator.GET("/active", handlers.Battle.ActiveBattles)
	}

	// ─── 3. WebSocket Group ────────────────────────────────────────────
	router.GET("/ws/battle/:battle_id", handlers.WS.BattleRoom)

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	})

	return router
}
