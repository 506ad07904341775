package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"renovation-service/internal/clients"
	"renovation-service/internal/config"
	"renovation-service/internal/handlers"
	"renovation-service/internal/middleware"
	"renovation-service/internal/models"
	natsclient "renovation-service/internal/nats"
	"renovation-service/internal/notify"
	rediscache "renovation-service/internal/redis"
	"renovation-service/internal/repository"
	"renovation-service/internal/services"
	"renovation-service/internal/storage"
	"renovation-service/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := initLogger(cfg.Logging)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	if err := autoMigrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	logger.Info("Database migration completed")

	// Redis is optional; the material list falls back to recomputing from
	// the latest artifact when the cache is unavailable
	var cache *rediscache.Client
	if cfg.Redis.Enabled {
		cache, err = rediscache.NewClient(cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, material list caching disabled")
			cache = nil
		} else {
			logger.Info("Connected to Redis")
		}
	}

	// NATS is optional; event publishing degrades to no-ops when disabled
	var events *natsclient.Client
	if cfg.NATS.Enabled {
		events, err = natsclient.NewClient(cfg.NATS.URL, logger)
		if err != nil {
			logger.WithError(err).Warn("NATS unavailable, event publishing disabled")
			events = nil
		} else {
			logger.Info("Connected to NATS")
		}
	}

	blobs, err := initBlobStore(cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize blob storage: %v", err)
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Push.Enabled {
		fcm, err := notify.NewFCMProvider(cfg.Push.FCMProjectID, cfg.Push.FCMCredentials,
			time.Duration(cfg.Push.TimeoutSeconds)*time.Second, logger)
		if err != nil {
			logger.WithError(err).Warn("FCM unavailable, push notifications disabled")
		} else {
			notifier = fcm
			logger.Info("FCM push notifications enabled")
		}
	}

	aiClient := clients.NewAIClient(cfg.AI.BaseURL, cfg.AI.APIKey,
		time.Duration(cfg.AI.TimeoutSeconds)*time.Second)
	ocrClient := clients.NewOCRClient(cfg.OCR.BaseURL, cfg.OCR.APIKey,
		time.Duration(cfg.OCR.TimeoutSeconds)*time.Second)
	enterpriseClient := clients.NewEnterpriseClient(cfg.Enterprise.BaseURL, cfg.Enterprise.APIKey,
		time.Duration(cfg.Enterprise.TimeoutSeconds)*time.Second)
	gateway := clients.NewHMACGateway(cfg.Payment.MerchantID, cfg.Payment.APIKey)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	constructionRepo := repository.NewConstructionRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	acceptanceRepo := repository.NewAcceptanceRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	photoRepo := repository.NewPhotoRepository(db)

	// Worker pool for external AI calls
	pool := workers.NewPool(cfg.AI.WorkerConcurrency, cfg.AI.QueueSize,
		time.Duration(cfg.AI.TimeoutSeconds)*time.Second, logger)

	// Services
	mapper := services.NewPayloadMapper(cfg.AI.RiskScoreMid, cfg.AI.RiskScoreHigh)
	authSvc := services.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryDays)
	scheduleSvc := services.NewScheduleService(db, constructionRepo, events, cfg.Schedule.StageDurations, logger)
	entitlementSvc := services.NewEntitlementService(db, userRepo, artifactRepo, acceptanceRepo, logger)
	materialSvc := services.NewMaterialService(db, materialRepo, artifactRepo, photoRepo, scheduleSvc, cache, logger)
	acceptanceSvc := services.NewAcceptanceService(acceptanceRepo, photoRepo, messageRepo,
		scheduleSvc, entitlementSvc, mapper, aiClient, pool, notifier, events, logger)
	artifactSvc := services.NewArtifactService(artifactRepo, messageRepo, entitlementSvc, mapper,
		ocrClient, aiClient, enterpriseClient, pool, notifier, events, logger)
	reminderSvc := services.NewReminderService(constructionRepo, settingRepo, messageRepo,
		notifier, cfg.Schedule.ReminderDefaultDaysAhead, logger)
	orderSvc := services.NewOrderService(db, orderRepo, artifactRepo, messageRepo, entitlementSvc,
		gateway, notifier, events, cfg.Payment.Prices, logger)
	messageSvc := services.NewMessageService(messageRepo, settingRepo)

	pool.Register(workers.TaskAcceptance, acceptanceSvc.HandleTask)
	pool.Register(workers.TaskArtifact, artifactSvc.HandleTask)
	pool.Start()

	// Daily reminder delivery
	runner := workers.NewRunner(reminderSvc, 24*time.Hour, logger)
	runner.Start()

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, cache, events)
	authHandler := handlers.NewAuthHandler(authSvc)
	scheduleHandler := handlers.NewScheduleHandler(scheduleSvc, reminderSvc)
	materialHandler := handlers.NewMaterialHandler(materialSvc)
	acceptanceHandler := handlers.NewAcceptanceHandler(acceptanceSvc)
	reportHandler := handlers.NewReportHandler(artifactSvc, blobs, cfg.Storage)
	orderHandler := handlers.NewOrderHandler(orderSvc)
	messageHandler := handlers.NewMessageHandler(messageSvc)

	router := setupRouter(cfg, logger, authSvc,
		healthHandler, authHandler, scheduleHandler, materialHandler,
		acceptanceHandler, reportHandler, orderHandler, messageHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Infof("Starting renovation-service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	runner.Stop()
	pool.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	if events != nil {
		events.Close()
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.Errorf("Error closing Redis connection: %v", err)
		}
	}

	logger.Info("Server exited")
}

func initLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		logrus.Warnf("Failed to create uuid-ossp extension: %v", err)
	}

	modelsToMigrate := []interface{}{
		&models.User{},
		&models.Construction{},
		&models.MaterialCheck{},
		&models.MaterialCheckItem{},
		&models.AcceptanceAnalysis{},
		&models.ReportArtifact{},
		&models.ConstructionPhoto{},
		&models.Order{},
		&models.Refund{},
		&models.Message{},
		&models.UserSetting{},
	}

	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

func initBlobStore(cfg config.StorageConfig, logger *logrus.Logger) (storage.BlobStore, error) {
	switch cfg.Provider {
	case "s3":
		return storage.NewS3Provider(cfg.AWS, cfg.Bucket, logger)
	case "mock":
		return storage.NewMockStore(cfg.LocalBaseURL), nil
	default:
		return storage.NewLocalProvider(cfg.LocalBasePath, cfg.LocalBaseURL, logger)
	}
}

func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	authSvc *services.AuthService,
	healthHandler *handlers.HealthHandler,
	authHandler *handlers.AuthHandler,
	scheduleHandler *handlers.ScheduleHandler,
	materialHandler *handlers.MaterialHandler,
	acceptanceHandler *handlers.AcceptanceHandler,
	reportHandler *handlers.ReportHandler,
	orderHandler *handlers.OrderHandler,
	messageHandler *handlers.MessageHandler,
) *gin.Engine {
	if cfg.Server.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}

	router.Use(cors.New(corsConfig))
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		// Public endpoints
		v1.POST("/auth/login", authHandler.Login)
		v1.POST("/payments/notify", orderHandler.PaymentNotify)

		// Everything else requires a session token
		authed := v1.Group("")
		authed.Use(middleware.Auth(authSvc))
		{
			authed.GET("/profile", authHandler.Profile)

			schedule := authed.Group("/schedule")
			{
				schedule.GET("", scheduleHandler.Get)
				schedule.POST("/start-date", scheduleHandler.SetStartDate)
				schedule.POST("/stages/:stage/status", scheduleHandler.UpdateStageStatus)
				schedule.POST("/stages/:stage/calibrate", scheduleHandler.CalibrateStage)
				schedule.DELETE("", scheduleHandler.Reset)
				schedule.GET("/reminders", scheduleHandler.Reminders)
			}

			materials := authed.Group("/materials")
			{
				materials.GET("", materialHandler.List)
				materials.POST("/checks", materialHandler.SubmitCheck)
				materials.GET("/checks/latest", materialHandler.LatestCheck)
			}

			acceptances := authed.Group("/acceptances")
			{
				acceptances.POST("", acceptanceHandler.Submit)
				acceptances.GET("", acceptanceHandler.List)
				acceptances.GET("/:id", acceptanceHandler.Get)
				acceptances.DELETE("/:id", acceptanceHandler.Delete)
				acceptances.POST("/:id/rectify", acceptanceHandler.MarkRectify)
				acceptances.POST("/:id/recheck", acceptanceHandler.RequestRecheck)
			}

			authed.POST("/uploads", reportHandler.Upload)

			reports := authed.Group("/reports")
			{
				reports.POST("", reportHandler.Submit)
				reports.GET("", reportHandler.List)
				reports.GET("/:id", reportHandler.Get)
				reports.GET("/:id/export", reportHandler.Export)
			}
			authed.GET("/companies/search", reportHandler.SearchCompanies)

			orders := authed.Group("/orders")
			{
				orders.POST("", orderHandler.Create)
				orders.GET("", orderHandler.List)
				orders.GET("/:id", orderHandler.Get)
				orders.GET("/:id/payment-params", orderHandler.PaymentParams)
				orders.POST("/:id/confirm", orderHandler.ConfirmPaid)
				orders.POST("/:id/refund", orderHandler.ApplyRefund)
			}

			messages := authed.Group("/messages")
			{
				messages.GET("", messageHandler.List)
				messages.GET("/unread-count", messageHandler.UnreadCount)
				messages.POST("/:id/read", messageHandler.MarkRead)
			}

			authed.GET("/settings", messageHandler.GetSettings)
			authed.PUT("/settings", messageHandler.UpdateSettings)
		}
	}

	return router
}
