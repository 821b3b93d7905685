package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-admin-api/api/swagger"
	"github.com/noah-isme/school-admin-api/internal/handler"
	internalmiddleware "github.com/noah-isme/school-admin-api/internal/middleware"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/pkg/cache"
	"github.com/noah-isme/school-admin-api/pkg/config"
	"github.com/noah-isme/school-admin-api/pkg/database"
	"github.com/noah-isme/school-admin-api/pkg/export"
	"github.com/noah-isme/school-admin-api/pkg/jobs"
	"github.com/noah-isme/school-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-admin-api/pkg/middleware/requestid"
	"github.com/noah-isme/school-admin-api/pkg/storage"
)

// @title School Admin API
// @version 1.0.0
// @description Grades, report cards and billing for a school administration
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	checks := map[string]handler.Pinger{"postgres": db}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		redisCache := repository.NewCacheRepository(redisClient, "school-admin")
		cacheRepo = redisCache
		checks["redis"] = handler.PingFunc(redisCache.Ping)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewRefreshTokenRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	classRepo := repository.NewClassRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	subjectLevelRepo := repository.NewSubjectLevelRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	reportCardRepo := repository.NewReportCardRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	pdfExporter := export.NewPDFExporter(export.Letterhead{
		Name:    cfg.School.Name,
		Address: cfg.School.Address,
		Phone:   cfg.School.Phone,
	})

	authSvc := service.NewAuthService(userRepo, tokenRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	subjectLevelSvc := service.NewSubjectLevelService(subjectLevelRepo, subjectRepo, validate, logr)
	reportCardSvc := service.NewReportCardService(service.ReportCardRepositories{
		Classes:       classRepo,
		Sessions:      sessionRepo,
		Enrollments:   enrollmentRepo,
		SubjectLevels: subjectLevelRepo,
		Grades:        gradeRepo,
		ReportCards:   reportCardRepo,
	}, pdfExporter, cacheSvc, metricsSvc, auditRepo, validate, logr)
	gradeSvc := service.NewGradeService(service.GradeRepositories{
		Grades:        gradeRepo,
		Enrollments:   enrollmentRepo,
		SubjectLevels: subjectLevelRepo,
		Classes:       classRepo,
		Sessions:      sessionRepo,
	}, reportCardSvc, cacheSvc, validate, logr)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, enrollmentRepo, yearRepo, paymentRepo, pdfExporter, auditRepo, validate, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, invoiceRepo, enrollmentRepo, pdfExporter, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, pdfExporter, logr)

	var exportHandler *handler.ExportHandler
	if cfg.Exports.Enabled {
		files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare export storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(reportCardSvc, files, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, export.NewCSVExporter(), pdfExporter)

		worker := service.NewExportWorker(exportJobRepo, exportSvc, metricsSvc, logr)
		queue := jobs.NewQueue[service.ExportTask]("report-card-exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			RetryDelay: 2 * time.Second,
			Logger:     logr,
		})
		queue.OnFailure(worker.Fail)
		queue.Start(ctx)
		defer queue.Stop()

		exportJobSvc := service.NewExportJobService(exportJobRepo, reportCardRepo, queue, exportSvc, metricsSvc, validate, logr, service.ExportJobConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
		})
		exportJobSvc.RecoverPendingJobs(ctx)
		exportJobSvc.StartCleanup(ctx)
		exportHandler = handler.NewExportHandler(exportJobSvc, logr)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		auth:          handler.NewAuthHandler(authSvc),
		subjectLevels: handler.NewSubjectLevelHandler(subjectLevelSvc),
		grades:        handler.NewGradeHandler(gradeSvc),
		reportCards:   handler.NewReportCardHandler(reportCardSvc),
		exports:       exportHandler,
		invoices:      handler.NewInvoiceHandler(invoiceSvc),
		payments:      handler.NewPaymentHandler(paymentSvc),
		enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		tokens:        authSvc,
		audit:         auditRepo,
		logger:        logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

type routeDeps struct {
	auth          *handler.AuthHandler
	subjectLevels *handler.SubjectLevelHandler
	grades        *handler.GradeHandler
	reportCards   *handler.ReportCardHandler
	exports       *handler.ExportHandler
	invoices      *handler.InvoiceHandler
	payments      *handler.PaymentHandler
	enrollments   *handler.EnrollmentHandler
	tokens        internalmiddleware.TokenValidator
	audit         internalmiddleware.AuditWriter
	logger        *zap.Logger
}

func registerRoutes(api *gin.RouterGroup, d routeDeps) {
	staff := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	admin := internalmiddleware.RequireRoles(models.RoleAdmin)
	audit := func(action, resource string) gin.HandlerFunc {
		return internalmiddleware.Audit(d.audit, d.logger, action, resource)
	}

	auth := api.Group("/auth")
	auth.POST("/login", d.auth.Login)
	auth.POST("/refresh", d.auth.Refresh)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(d.tokens))

	secured.POST("/auth/logout", d.auth.Logout)
	secured.POST("/auth/change-password", d.auth.ChangePassword)
	secured.GET("/auth/me", d.auth.Me)

	subjectLevels := secured.Group("/subject-levels")
	subjectLevels.GET("", staff, d.subjectLevels.List)
	subjectLevels.GET("/:id", staff, d.subjectLevels.Get)
	subjectLevels.POST("", admin, audit("CREATE", "subject_level"), d.subjectLevels.Create)
	subjectLevels.PUT("/:id", admin, audit("UPDATE", "subject_level"), d.subjectLevels.Update)
	subjectLevels.DELETE("/:id", admin, audit("DELETE", "subject_level"), d.subjectLevels.Delete)

	grades := secured.Group("/grades", staff)
	grades.GET("", d.grades.List)
	grades.POST("", audit("CREATE", "grade"), d.grades.Create)
	grades.POST("/bulk", audit("BULK_UPSERT", "grade"), d.grades.Bulk)
	grades.GET("/:id", d.grades.Get)
	grades.PUT("/:id", audit("UPDATE", "grade"), d.grades.Update)
	grades.DELETE("/:id", audit("DELETE", "grade"), d.grades.Delete)
	grades.GET("/enrollment/:enrollmentId", d.grades.ByEnrollment)
	grades.GET("/class/:classId/subject/:subjectId/session/:sessionId", d.grades.Sheet)
	grades.GET("/class/:classId/subject-level/:subjectLevelId/session/:sessionId/statistics", d.grades.Statistics)

	cards := secured.Group("/report-cards")
	cards.GET("", staff, d.reportCards.List)
	cards.POST("", admin, audit("CREATE", "report_card"), d.reportCards.Create)
	cards.GET("/:id", staff, d.reportCards.Get)
	cards.PUT("/:id", admin, audit("UPDATE", "report_card"), d.reportCards.Update)
	cards.DELETE("/:id", admin, audit("DELETE", "report_card"), d.reportCards.Delete)
	cards.GET("/:id/pdf", staff, d.reportCards.PDF)
	cards.GET("/enrollment/:enrollmentId", staff, d.reportCards.ByEnrollment)
	cards.GET("/class/:classId/session/:sessionId", staff, d.reportCards.ByClassSession)
	cards.GET("/class/:classId/session/:sessionId/pdf", staff, d.reportCards.ClassPDF)
	cards.POST("/generate/class/:classId/session/:sessionId", admin, d.reportCards.Generate)
	if d.exports != nil {
		cards.POST("/export", staff, d.exports.Create)
		cards.GET("/export/:id", staff, d.exports.Status)
		api.GET("/export/:token", d.exports.Download)
	}

	invoices := secured.Group("/invoices", admin)
	invoices.GET("", d.invoices.List)
	invoices.POST("", audit("CREATE", "invoice"), d.invoices.Create)
	invoices.GET("/statistics", d.invoices.Statistics)
	invoices.GET("/:id", d.invoices.Get)
	invoices.PUT("/:id", audit("UPDATE", "invoice"), d.invoices.Update)
	invoices.DELETE("/:id", audit("DELETE", "invoice"), d.invoices.Delete)
	invoices.GET("/:id/pdf", d.invoices.PDF)
	invoices.POST("/:id/mark-paid", d.invoices.MarkPaid)
	invoices.GET("/enrollment/:enrollmentId", d.invoices.ByEnrollment)

	payments := secured.Group("/payments", admin)
	payments.GET("", d.payments.List)
	payments.POST("", audit("CREATE", "payment"), d.payments.Create)
	payments.GET("/:id", d.payments.Get)
	payments.DELETE("/:id", audit("DELETE", "payment"), d.payments.Delete)
	payments.GET("/:id/receipt", d.payments.Receipt)
	payments.GET("/enrollment/:enrollmentId", d.payments.ByEnrollment)

	secured.GET("/enrollments/:id/certificate", staff, d.enrollments.Certificate)
}
