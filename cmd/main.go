package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"gstrecon/internal/analytics"
	"gstrecon/internal/caching"
	"gstrecon/internal/handlers"
	"gstrecon/internal/jobs/background"
	"gstrecon/internal/middleware"
	"gstrecon/internal/repositories"
	"gstrecon/internal/services"
	"gstrecon/pkg/database"
)

const version = "1.0.0"

func main() {
	// Database connection
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := database.NewPool(context.Background(), databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Redis configuration
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if redisDBStr := os.Getenv("REDIS_DB"); redisDBStr != "" {
		if db, err := strconv.Atoi(redisDBStr); err == nil {
			redisDB = db
		}
	}

	// MinIO configuration
	minioEndpoint := os.Getenv("MINIO_ENDPOINT")
	if minioEndpoint == "" {
		minioEndpoint = "localhost:9000"
	}
	minioAccessKey := os.Getenv("MINIO_ACCESS_KEY")
	if minioAccessKey == "" {
		minioAccessKey = "minioadmin" // Default for development
	}
	minioSecretKey := os.Getenv("MINIO_SECRET_KEY")
	if minioSecretKey == "" {
		minioSecretKey = "minioadmin" // Default for development
	}
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"
	reportBucket := os.Getenv("RECON_REPORT_BUCKET")
	if reportBucket == "" {
		reportBucket = "recon-reports"
	}

	// Batch and worker limits
	maxBatchRecords := services.DefaultMaxBatchRecords
	if capStr := os.Getenv("RECON_MAX_BATCH_RECORDS"); capStr != "" {
		if n, err := strconv.Atoi(capStr); err == nil && n > 0 {
			maxBatchRecords = n
		}
	}
	workers := 0
	if workersStr := os.Getenv("RECON_WORKERS"); workersStr != "" {
		if n, err := strconv.Atoi(workersStr); err == nil {
			workers = n
		}
	}

	// Report archive
	reportArchive, err := services.NewReportArchiveService(minioEndpoint, minioAccessKey, minioSecretKey, reportBucket, useSSL)
	if err != nil {
		log.Fatalf("Failed to initialize report archive: %v", err)
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := reportArchive.EnsureBucketExists(ctx); err != nil {
			log.Printf("WARNING: report bucket unavailable, archiving degraded: %v", err)
		}
		cancel()
	}

	// Cache service
	cacheSvc := caching.NewRedisCacheService(redisAddr, redisPassword, redisDB)

	// Repositories
	gstr2aRepo := repositories.NewGSTR2ARepo(pool)
	purchaseRepo := repositories.NewPurchaseInvoiceRepo(pool)
	reconRepo := repositories.NewReconciliationRepo(pool)
	vendorRepo := repositories.NewVendorRepo(pool)

	// Services
	analyticsSvc := analytics.NewAnalyticsService(reconRepo, vendorRepo, cacheSvc)
	reconSvc := services.NewReconciliationService(
		gstr2aRepo, purchaseRepo, reconRepo,
		analyticsSvc, reportArchive, cacheSvc,
		maxBatchRecords, workers)

	// Background jobs
	scheduler, err := background.NewJobScheduler(reconSvc, analyticsSvc, gstr2aRepo, reconRepo)
	if err != nil {
		log.Fatalf("Failed to create job scheduler: %v", err)
	}

	// Handlers
	reconHandlers := handlers.NewReconciliationHandlers(reconSvc)
	vendorHandlers := handlers.NewVendorHandlers(vendorRepo)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc, reportArchive, scheduler)

	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Printf("Failed to stop job scheduler: %v", err)
		}
	}()

	// Echo instance
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	rateLimiter := middleware.NewRateLimitMiddleware(cacheSvc, middleware.DefaultRateLimitConfig())

	// Health endpoints
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	// API routes
	v1 := versionMiddleware.VersionRoute(e, versionMiddleware.GetCurrentVersion())
	v1.Use(rateLimiter.Limit())

	recon := v1.Group("/reconciliation")
	recon.POST("/import", reconHandlers.ImportGSTR2A)
	recon.POST("/run", reconHandlers.RunReconciliation)
	recon.GET("/summary", reconHandlers.GetSummary)
	recon.GET("/vendors", reconHandlers.GetVendorSummaries)
	recon.GET("/mismatches", reconHandlers.GetMismatches)
	recon.GET("/actions", reconHandlers.GetActions)
	recon.GET("/report", reconHandlers.GetReportURL)

	vendors := v1.Group("/vendors")
	vendors.POST("", vendorHandlers.CreateVendor)
	vendors.GET("", vendorHandlers.ListVendors)
	vendors.GET("/:gstin", vendorHandlers.GetVendor)

	// Start server
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", portStr, err)
	}

	go func() {
		log.Printf("GST reconciliation server v%s starting on port %d", version, port)
		if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}
