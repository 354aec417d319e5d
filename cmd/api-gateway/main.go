package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/svnapro/campus-api/api/swagger"
	"github.com/svnapro/campus-api/internal/handler"
	"github.com/svnapro/campus-api/internal/middleware"
	"github.com/svnapro/campus-api/internal/models"
	"github.com/svnapro/campus-api/internal/repository"
	"github.com/svnapro/campus-api/internal/service"
	"github.com/svnapro/campus-api/pkg/cache"
	"github.com/svnapro/campus-api/pkg/config"
	"github.com/svnapro/campus-api/pkg/database"
	"github.com/svnapro/campus-api/pkg/jobs"
	"github.com/svnapro/campus-api/pkg/logger"
	corsmiddleware "github.com/svnapro/campus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/svnapro/campus-api/pkg/middleware/requestid"
	"github.com/svnapro/campus-api/pkg/storage"
)

// @title SvnaPro Campus API
// @version 0.1.0
// @description Multi-tenant college management backend with academic year migrations
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	collegeRepo := repository.NewCollegeRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	migrationRepo := repository.NewMigrationRepository(db)
	archiveRepo := repository.NewArchiveRepository(db)
	promotionRepo := repository.NewPromotionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, auditRepo, cfg.JWT, logr)
	collegeSvc := service.NewCollegeService(collegeRepo, logr)
	yearSvc := service.NewAcademicYearService(yearRepo, cacheRepo, auditRepo, logr, service.AcademicYearServiceConfig{
		ListCacheTTL: cfg.Migrations.YearsCacheTTL,
	})
	migrationSvc := service.NewMigrationService(service.MigrationServiceParams{
		Migrations: migrationRepo,
		Years:      yearRepo,
		Students:   studentRepo,
		Archives:   archiveRepo,
		Requests:   promotionRepo,
		Cache:      cacheRepo,
		Audit:      auditRepo,
		Logger:     logr,
		Config:     service.MigrationServiceConfig{PreviewCacheTTL: cfg.Migrations.PreviewCacheTTL},
	})
	promotionSvc := service.NewPromotionService(promotionRepo, studentRepo, yearRepo, auditRepo, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	collegeHandler := handler.NewCollegeHandler(collegeSvc)
	yearHandler := handler.NewAcademicYearHandler(yearSvc)
	migrationHandler := handler.NewMigrationHandler(migrationSvc, metricsSvc)
	promotionHandler := handler.NewPromotionHandler(promotionSvc, metricsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	var reportHandler *handler.ReportHandler
	if cfg.Reports.Enabled {
		reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(migrationRepo, promotionRepo)
		reportSvc := service.NewReportService(reportRepo, exportSvc, reportStorage, signer, metricsSvc, logr, service.ReportServiceConfig{
			FileTTL: cfg.Reports.SignedURLTTL,
		})
		reportQueue := jobs.NewQueue("reports", reportSvc.ProcessJob, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()
		reportSvc.AttachQueue(reportQueue)
		go reportSvc.RunCleanup(ctx, cfg.Reports.CleanupInterval)
		reportHandler = handler.NewReportHandler(reportSvc)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWTAuth(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWTAuth(authSvc), authHandler.Me)

		secured := api.Group("", middleware.JWTAuth(authSvc))

		admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
		staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleHOD, models.RoleFaculty)

		secured.GET("/colleges", collegeHandler.List)
		secured.POST("/colleges", middleware.RequireRoles(models.RoleSuperAdmin), collegeHandler.Create)

		secured.GET("/academic-years", yearHandler.List)
		secured.POST("/academic-years", admins, yearHandler.Create)
		secured.PATCH("/academic-years/:id/current", admins, yearHandler.SetCurrent)

		if cfg.Migrations.Enabled {
			secured.POST("/migrations/preview", admins, migrationHandler.Preview)
			secured.POST("/students/promote", admins, migrationHandler.Promote)
			secured.POST("/academic-years/archive", admins, migrationHandler.Archive)
			secured.GET("/migrations", staff, migrationHandler.List)
			secured.GET("/migrations/:id", staff, migrationHandler.Get)
			secured.POST("/migrations/:id/rollback", admins, migrationHandler.Rollback)
		}

		if cfg.Promotions.Enabled {
			students := middleware.RequireRoles(models.RoleStudent)
			secured.POST("/promotions", students, promotionHandler.Create)
			secured.GET("/promotions/mine", students, promotionHandler.ListMine)
			secured.GET("/promotions", staff, promotionHandler.List)
			secured.PATCH("/promotions/:id", admins, promotionHandler.Review)
		}

		if reportHandler != nil {
			secured.POST("/migrations/reports", staff, reportHandler.Create)
			secured.GET("/reports/:id", staff, reportHandler.Status)
			secured.GET("/reports/:id/download", staff, reportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
