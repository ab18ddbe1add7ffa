package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/colegio-smp/matricula-api/api/swagger"
	"github.com/colegio-smp/matricula-api/internal/gateway"
	"github.com/colegio-smp/matricula-api/internal/handler"
	"github.com/colegio-smp/matricula-api/internal/middleware"
	"github.com/colegio-smp/matricula-api/internal/models"
	"github.com/colegio-smp/matricula-api/internal/repository"
	"github.com/colegio-smp/matricula-api/internal/service"
	"github.com/colegio-smp/matricula-api/pkg/cache"
	"github.com/colegio-smp/matricula-api/pkg/config"
	"github.com/colegio-smp/matricula-api/pkg/database"
	"github.com/colegio-smp/matricula-api/pkg/export"
	"github.com/colegio-smp/matricula-api/pkg/logger"
	corsmiddleware "github.com/colegio-smp/matricula-api/pkg/middleware/cors"
	reqidmiddleware "github.com/colegio-smp/matricula-api/pkg/middleware/requestid"
	"github.com/colegio-smp/matricula-api/pkg/storage"

	"github.com/redis/go-redis/v9"
)

// @title Matrícula API
// @version 1.0.0
// @description Backend for school enrollment, payments and student onboarding
// @BasePath /api/matriculas
// @schemes http

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

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, list cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	fileStore, err := storage.NewLocalStorage(cfg.Uploads.BaseDir, cfg.Uploads.MaxFileSizeByte)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}

	stripeClient := gateway.NewStripeClient(cfg.Stripe)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authService := service.NewAuthService(userRepo, profileRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "matricula-api",
	})
	metricsService := service.NewMetricsService()
	enrollmentService := service.NewEnrollmentService(
		studentRepo, enrollmentRepo, paymentRepo,
		stripeClient, fileStore, cacheRepo,
		metricsService, validate, logr, cfg.Enrollment, cfg.Cache.ListTTL,
	)
	profileService := service.NewProfileService(profileRepo, userRepo, fileStore, logr)
	receiptService := service.NewReceiptService(paymentRepo, export.NewReceiptExporter(), cfg.Enrollment.Currency, logr)

	authHandler := handler.NewAuthHandler(authService)
	studentHandler := handler.NewStudentHandler(enrollmentService)
	paymentHandler := handler.NewPaymentHandler(enrollmentService, receiptService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	profileHandler := handler.NewProfileHandler(profileService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready(db, redisClient))
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/registro/", authHandler.Register)
		api.POST("/login/", authHandler.Login)
		api.POST("/token/refresh/", authHandler.Refresh)

		authed := api.Group("")
		authed.Use(middleware.JWT(authService))
		{
			authed.POST("/logout/", authHandler.Logout)
			authed.GET("/role/", authHandler.Role)

			authed.POST("/estudiante/crear/", studentHandler.Create)
			authed.GET("/estudiante/verificar/", studentHandler.Verify)
			authed.GET("/check-student/", studentHandler.Check)

			authed.POST("/pago/confirmar/:intent_id/", paymentHandler.Confirm)
			authed.GET("/pago/recibo/:intent_id/", paymentHandler.Receipt)

			authed.GET("/perfil/", profileHandler.Get)
			authed.PUT("/perfil/", profileHandler.Update)

			admin := authed.Group("")
			admin.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))
			{
				admin.GET("/matriculas/", enrollmentHandler.List)
				admin.PATCH("/matriculas/:id/verificar/", enrollmentHandler.Review)
			}
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
