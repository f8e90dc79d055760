package webserver

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func attachRoutes(r *gin.Engine, cfg Config, deps Deps) {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := NewRateLimiter(cfg.RPS, cfg.Burst)
	v1 := r.Group("/v1")

	pub := &publicHandlers{store: deps.Store, guilds: deps.Guilds}
	public := v1.Group("")
	public.Use(RateLimitMiddleware(limiter))
	{
		public.GET("/guilds/:id", pub.guild)
		public.GET("/leaderboard", pub.leaderboard)
		public.GET("/stats", pub.stats)
	}

	// Admin requests are limited per user once the token is verified.
	adm := &adminHandlers{store: deps.Store, users: deps.Users, operator: deps.Operator, sweeper: deps.Sweeper}
	admin := v1.Group("/admin")
	admin.Use(JWTMiddleware(cfg.JWTSecret), AdminMiddleware(deps.Users), RateLimitMiddleware(limiter))
	{
		admin.GET("/bottles", adm.listBottles)
		admin.POST("/bottles/:id/redeliver", adm.redeliver)
		admin.POST("/bottles/:id/expire", adm.expire)
		admin.POST("/sweep", adm.sweep)
		admin.DELETE("/users/:id", adm.removeUser)
	}
}
