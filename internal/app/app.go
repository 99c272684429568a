// Package app wires configuration, storage tiers and HTTP routes into a
// runnable server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/appsight/core/internal/config"
	"github.com/appsight/core/internal/database"
	"github.com/appsight/core/internal/middleware"
	"github.com/appsight/core/internal/modules/appstore"
	"github.com/appsight/core/internal/modules/archive"
	"github.com/appsight/core/internal/modules/generate"
	"github.com/appsight/core/internal/modules/report"
	"github.com/appsight/core/internal/modules/search"
	"github.com/appsight/core/internal/modules/store"
	pkgcron "github.com/appsight/core/internal/pkg/cron"
	pkgredis "github.com/appsight/core/internal/pkg/redis"
	"github.com/appsight/core/internal/pkg/taskqueue"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg         *config.AppConfig
	router      *gin.Engine
	db          *gorm.DB
	logger      *zap.Logger
	cancel      context.CancelFunc
	sched       *pkgcron.Scheduler
	coordinator *report.Coordinator
}

// New initializes the application: config, database, Redis, cache tiers, routes.
func New(logger *zap.Logger, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	blob, err := buildArchive(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	durable := store.NewService(store.NewIndex(db), blob, cfg.ReportTTL(), logger.Named("store"))
	searcher := buildSearch(cfg, db, logger)
	apps := buildAppStore(cfg, logger)
	generator := generate.NewService(cfg.SelectAIProvider(), logger.Named("generate"))

	coordinator, err := report.NewCoordinator(durable, searcher, apps, generator, report.Options{
		BaseURL:            cfg.BaseURL,
		AnalysisCapacity:   cfg.Cache.AnalysisCapacity,
		ComparisonCapacity: cfg.Cache.ComparisonCapacity,
		TTL:                cfg.ReportTTL(),
	}, logger.Named("report"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			return originAllowed(patterns, origin)
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New()

	app := &App{
		cfg:         cfg,
		router:      router,
		db:          db,
		logger:      logger,
		cancel:      cancel,
		sched:       sched,
		coordinator: coordinator,
	}
	tasks := taskqueue.NewService(rc)
	app.registerCronJobs(tasks, apps)
	go sched.Start(ctx)
	app.registerRoutes(rc, tasks, apps)

	return app, nil
}

func buildArchive(cfg *config.AppConfig, logger *zap.Logger) (archive.Blob, error) {
	var mirror archive.Blob
	if cfg.Archive.S3.Enable {
		s3, err := archive.NewS3Mirror(cfg.Archive.S3)
		if err != nil {
			return nil, err
		}
		mirror = s3
	}
	return archive.NewLocal(cfg.Archive.Dir, mirror, logger.Named("archive"))
}

func buildSearch(cfg *config.AppConfig, db *gorm.DB, logger *zap.Logger) *search.Service {
	var embedder search.Embedder
	if cfg.AI.Semantic.Enable && cfg.AI.Embedding.APIKey != "" {
		embedder = search.NewOpenAIEmbedder(
			cfg.AI.Embedding.APIKey,
			cfg.AI.Embedding.Endpoint,
			cfg.AI.Embedding.Model,
			cfg.AI.Embedding.Dimensions,
		)
	}
	vectors := search.NewVectors(db)
	return search.NewService(embedder, vectors, vectors, search.Options{
		SemanticEnabled:     cfg.AI.Semantic.Enable,
		SimilarityThreshold: cfg.AI.Semantic.SimilarityThreshold,
		TopK:                cfg.AI.Semantic.TopK,
		ChunkWords:          cfg.AI.Semantic.ChunkWords,
	}, logger.Named("search"))
}

func buildAppStore(cfg *config.AppConfig, logger *zap.Logger) *appstore.Service {
	providers := make([]appstore.Provider, 0, len(cfg.AppStore.Providers))
	for _, p := range cfg.AppStore.Providers {
		providers = append(providers, appstore.NewClient(p.Name, p.Endpoint, p.APIKey))
	}
	return appstore.NewService(providers, cfg.QueryTTL(), logger.Named("appstore"))
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }
