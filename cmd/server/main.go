package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mkobayashi/kaitori-backend/config"
	"github.com/mkobayashi/kaitori-backend/internal/app/controller"
	"github.com/mkobayashi/kaitori-backend/internal/app/repository"
	"github.com/mkobayashi/kaitori-backend/internal/app/service"
	"github.com/mkobayashi/kaitori-backend/internal/db"
	"github.com/mkobayashi/kaitori-backend/internal/middleware"
	"github.com/mkobayashi/kaitori-backend/internal/router"
	"github.com/mkobayashi/kaitori-backend/internal/scheduler"
	"github.com/mkobayashi/kaitori-backend/pkg/logger"
	"github.com/mkobayashi/kaitori-backend/pkg/redis"
	"github.com/mkobayashi/kaitori-backend/pkg/util"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      "console", // Use "json" for production
		EnableColor: true,
	})

	logger.Info("Starting KAITORI Backend Server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis is optional; without it the sweeper runs unlocked
	if cfg.Redis.Enabled {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Fatal("Failed to initialize Redis", err)
		}
		defer func() {
			if err := redis.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}()
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.GetDB())
	variantRepo := repository.NewVariantRepository(db.GetDB())
	cartRepo := repository.NewCartRepository(db.GetDB())
	holdRepo := repository.NewHoldRepository(db.GetDB())
	requestRepo := repository.NewRequestRepository(db.GetDB())

	// Initialize services
	mailer := util.NewSMTPMailer(cfg.SMTP)
	notificationService := service.NewNotificationService(userRepo, mailer)
	variantService := service.NewVariantService(variantRepo)
	cartService := service.NewCartService(
		cartRepo,
		holdRepo,
		variantRepo,
		requestRepo,
		notificationService,
		cfg.Cart.SessionTTL,
		db.GetDB(),
	)
	requestService := service.NewRequestService(requestRepo, notificationService, db.GetDB())

	// Initialize controllers
	variantController := controller.NewVariantController(variantService)
	cartController := controller.NewCartController(cartService)
	requestController := controller.NewRequestController(requestService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Start the session sweeper
	sweeper := scheduler.NewSessionSweeper(cartService, cfg.Cart.SweepInterval, cfg.Redis.Enabled)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start session sweeper", err)
	}
	defer sweeper.Stop()

	// Setup router
	r := router.NewRouter(
		variantController,
		cartController,
		requestController,
		authMiddleware,
		cfg,
	)
	engine := r.Setup()

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server started successfully", map[string]interface{}{
			"address": addr,
			"pid":     os.Getpid(),
		})
		if err := engine.Run(addr); err != nil {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	logger.Info("Server stopped successfully")
}
