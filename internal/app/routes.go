package app

import (
	"net/http"
	"time"

	"github.com/appsight/core/internal/middleware"
	"github.com/appsight/core/internal/modules/appstore"
	"github.com/appsight/core/internal/modules/report"
	pkgredis "github.com/appsight/core/internal/pkg/redis"
	"github.com/appsight/core/internal/pkg/response"
	"github.com/appsight/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

func (a *App) registerRoutes(rc *pkgredis.Client, tasks *taskqueue.Service, apps *appstore.Service) {
	r := a.router
	adminMW := middleware.Admin(a.cfg.AdminToken)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":     "appsight-core",
		"version":  "1.0.0",
		"homepage": "https://github.com/appsight/core",
	}

	// Admin detection first so the rate limiter can exempt operators.
	r.Use(middleware.MarkAdmin(a.cfg.AdminToken))
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	api := r.Group("/api/v2")

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"timestamp": time.Since(startTime).Milliseconds()})
	})
	api.GET("/health", a.health(rc, apps))

	report.NewHandler(a.coordinator, tasks, a.logger.Named("report")).RegisterRoutes(api, adminMW)
	appstore.NewHandler(apps).RegisterRoutes(api)

	a.registerCronRoutes(api, adminMW)

	// Hot tier inspection (admin)
	api.GET("/cache/hot", adminMW, func(c *gin.Context) {
		analyses, comparisons := a.coordinator.HotEntries()
		c.JSON(http.StatusOK, gin.H{
			"analyses":    analyses,
			"comparisons": comparisons,
		})
	})
}

// health reports connectivity of the metadata index and Redis plus the
// live size of each cache tier.
func (a *App) health(rc *pkgredis.Client, apps *appstore.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		dbOK := true
		if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			dbOK = false
		}
		redisOK := rc.Raw().Ping(ctx).Err() == nil

		analyses, comparisons := a.coordinator.HotEntries()

		status := http.StatusOK
		if !dbOK || !redisOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"database": dbOK,
			"redis":    redisOK,
			"uptime":   time.Since(startTime).Milliseconds(),
			"cache": gin.H{
				"hot_analyses":    len(analyses),
				"hot_comparisons": len(comparisons),
				"query_tries":     apps.QueryCacheSizes(),
			},
		})
	}
}

// registerCronRoutes exposes the scheduler for inspection and manual runs.
func (a *App) registerCronRoutes(api *gin.RouterGroup, adminMW gin.HandlerFunc) {
	g := api.Group("/crons", adminMW)

	g.GET("", func(c *gin.Context) {
		response.OK(c, a.sched.List())
	})
	g.GET("/:name", func(c *gin.Context) {
		result, err := a.sched.GetTask(c.Param("name"))
		if err != nil {
			response.NotFoundMsg(c, "cron job not found")
			return
		}
		response.OK(c, result)
	})
	g.POST("/:name/run", func(c *gin.Context) {
		if err := a.sched.Run(c.Request.Context(), c.Param("name")); err != nil {
			response.NotFoundMsg(c, "cron job not found")
			return
		}
		response.OK(c, gin.H{"message": "job triggered"})
	})
}
