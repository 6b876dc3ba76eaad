package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/utsmok/ea-cli-django-sub002/internal/handler"
	"github.com/utsmok/ea-cli-django-sub002/internal/middleware"
	"github.com/utsmok/ea-cli-django-sub002/internal/repository"
	"github.com/utsmok/ea-cli-django-sub002/internal/service"
	"github.com/utsmok/ea-cli-django-sub002/pkg/cache"
	"github.com/utsmok/ea-cli-django-sub002/pkg/config"
	"github.com/utsmok/ea-cli-django-sub002/pkg/database"
	"github.com/utsmok/ea-cli-django-sub002/pkg/logger"
	corsmiddleware "github.com/utsmok/ea-cli-django-sub002/pkg/middleware/cors"
	reqidmiddleware "github.com/utsmok/ea-cli-django-sub002/pkg/middleware/requestid"
	"github.com/utsmok/ea-cli-django-sub002/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, audit cache disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir, cfg.Exports.BackupSubdir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}

	batchRepo := repository.NewBatchRepository(db)
	itemRepo := repository.NewItemRepository(db)
	changeRepo := repository.NewChangeLogRepository(db)
	manifestRepo := repository.NewManifestRepository(db)

	var cacheRepo *repository.CacheRepository
	if cfg.Audit.CacheEnabled {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	metricsSvc := service.NewMetricsService()
	var auditSvc *service.AuditService
	if cacheRepo != nil {
		auditSvc = service.NewAuditService(changeRepo, cacheRepo, metricsSvc, cfg.Audit.CacheTTL, logr)
	} else {
		auditSvc = service.NewAuditService(changeRepo, nil, metricsSvc, cfg.Audit.CacheTTL, logr)
	}
	standardizerSvc := service.NewStandardizerService(logr)
	ingestSvc := service.NewIngestService(batchRepo, standardizerSvc, validator.New(), cfg.Ingest, logr)
	mergeSvc := service.NewMergeService(batchRepo, itemRepo, changeRepo, db, auditSvc, metricsSvc, logr)
	exportSvc, err := service.NewExportService(itemRepo, changeRepo, manifestRepo, store, db, cfg.Exports.SheetPassword, cfg.Exports.PDFSummary, metricsSvc, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export service", "error", err)
	}
	paritySvc := service.NewParityService(store, logr)

	batchHandler := handler.NewBatchHandler(ingestSvc, mergeSvc)
	exportHandler := handler.NewExportHandler(exportSvc, paritySvc, cfg.Exports.BackupRetention)
	auditHandler := handler.NewAuditHandler(auditSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	{
		api.POST("/batches", batchHandler.Stage)
		api.GET("/batches", batchHandler.List)
		api.GET("/batches/:id", batchHandler.Get)
		api.POST("/batches/:id/process", batchHandler.Process)

		api.POST("/exports", exportHandler.Run)
		api.GET("/exports/manifests", exportHandler.Manifests)
		api.POST("/exports/compare", exportHandler.Compare)
		api.POST("/exports/cleanup", exportHandler.Cleanup)

		api.GET("/items/:id/history", auditHandler.ItemHistory)
		api.GET("/batches/:id/changes", auditHandler.BatchHistory)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
