package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"referral-platform/internal/attribution"
	"referral-platform/internal/auth"
	"referral-platform/internal/config"
	"referral-platform/internal/database"
	"referral-platform/internal/handlers"
	"referral-platform/internal/jobs"
	"referral-platform/internal/models"
	"referral-platform/internal/repository"
	"referral-platform/internal/services"
	"referral-platform/internal/tracking"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Open the embedded fallback store for attribution bindings
	fallbackDB, err := gorm.Open(sqlite.Open(cfg.Tracking.FallbackDBPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		log.Fatalf("Failed to open attribution fallback store: %v", err)
	}
	if err := fallbackDB.AutoMigrate(&models.AttributionBinding{}); err != nil {
		log.Fatalf("Failed to migrate attribution fallback store: %v", err)
	}

	// Attribution store: primary in Postgres, fallback in embedded SQLite
	store, err := attribution.NewStore(
		attribution.NewGormBackend(database.GetDB()),
		attribution.NewGormBackend(fallbackDB),
	)
	if err != nil {
		log.Fatalf("Failed to initialize attribution store: %v", err)
	}

	// Click recorder and its outbound queue
	queueSize, err := strconv.Atoi(cfg.Tracking.ClickQueueSize)
	if err != nil {
		queueSize = 1024
	}
	ingestClient := tracking.NewIngestClient(cfg.Tracking.IngestEndpoint)
	recorder := tracking.NewRecorder(database.GetDB(), ingestClient, queueSize)

	// Load program settings (tier ladder, payout minimum)
	settingsService := services.NewSettingsService(database.GetDB())
	if _, err := settingsService.Load(); err != nil {
		log.Fatalf("Failed to load program settings: %v", err)
	}

	// Initialize repository
	repo := repository.NewRepository(database.GetDB())

	// Initialize services
	commissionService := services.NewCommissionService(database.GetDB(), repo, settingsService)
	tierService := services.NewTierService(database.GetDB(), settingsService)
	lifecycleService := services.NewLifecycleService(
		database.GetDB(), repo, store, recorder, commissionService, tierService)
	partnerService := services.NewPartnerService(database.GetDB())
	payoutService := services.NewPayoutService(database.GetDB(), settingsService)

	// Initialize handlers
	trackingHandler := handlers.NewTrackingHandler(store, lifecycleService)
	partnerHandler := handlers.NewPartnerHandler(partnerService, commissionService, payoutService)
	webhookHandler := handlers.NewWebhookHandler(lifecycleService)
	adminHandler := handlers.NewAdminHandler(partnerService, payoutService, lifecycleService, settingsService)

	// Start click dispatcher
	dispatcher := jobs.NewClickDispatcher(recorder)
	go dispatcher.Start()
	log.Println("Click dispatcher started")

	// Start churn detector
	churnDays, err := strconv.Atoi(cfg.App.ChurnAfterDays)
	if err != nil || churnDays <= 0 {
		churnDays = 90
	}
	churnDetector := jobs.NewChurnDetector(
		database.GetDB(), lifecycleService,
		time.Duration(churnDays)*24*time.Hour, time.Hour)
	go churnDetector.Start()
	log.Println("Churn detector started")

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Public tracking routes
	router.GET("/t/:code", trackingHandler.TrackLink)
	router.POST("/track", trackingHandler.TrackVisit)
	router.GET("/api/attribution", trackingHandler.GetAttribution)

	// External event webhooks
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/registration", webhookHandler.HandleRegistration)
		webhooks.POST("/payment", webhookHandler.HandlePayment)
	}

	// Partner API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		partnerRoutes := api.Group("/partner")
		{
			partnerRoutes.GET("/profile", partnerHandler.GetProfile)
			partnerRoutes.GET("/stats", partnerHandler.GetStats)
			partnerRoutes.GET("/referrals", partnerHandler.GetReferrals)
			partnerRoutes.GET("/commissions", partnerHandler.GetCommissions)
			partnerRoutes.GET("/payouts", partnerHandler.GetPayouts)
			partnerRoutes.POST("/payouts", partnerHandler.RequestPayout)
		}
	}

	// Admin routes (protected + admin only)
	admin := router.Group("/api/admin")
	admin.Use(auth.AuthMiddleware())
	admin.Use(auth.AdminMiddleware())
	{
		admin.POST("/partners", adminHandler.CreatePartner)
		admin.PUT("/partners/:id/status", adminHandler.SetPartnerStatus)
		admin.PUT("/partners/:id/tier", adminHandler.SetPartnerTier)
		admin.PUT("/referrals/:id/status", adminHandler.SetReferralStatus)
		admin.POST("/payouts/:id/approve", adminHandler.ApprovePayout)
		admin.POST("/payouts/:id/reject", adminHandler.RejectPayout)
		admin.GET("/settings", adminHandler.GetSettings)
		admin.PUT("/settings", adminHandler.UpdateSettings)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	dispatcher.Stop()
	churnDetector.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
